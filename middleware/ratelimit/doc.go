// Package ratelimit fornece os ganchos de transporte (net/http e gRPC) do
// admission control.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (container, registro, gate global, decisão + permit)
//   - infra: implementações concretas (token bucket, vagas preemptivas, stats)
//   - config: arquivo YAML com as estratégias por endpoint
//   - ratelimit (este pacote): middleware HTTP, interceptors gRPC, extração do
//     IP do cliente e tradução da decisão para status/headers
//
// Fluxo por requisição:
//
//  1. Monta o RuntimeData (método, path, IP do cliente, headers escolhidos)
//  2. Espera o GlobalGate (teto de vazão do processo)
//  3. Consulta o limiter do endpoint (namespace "http_" ou "rpc_")
//  4. Se recusado, responde 503 + JSON (HTTP) ou ResourceExhausted (gRPC)
//  5. Se admitido, chama o handler e libera o Permit em qualquer saída
package ratelimit
