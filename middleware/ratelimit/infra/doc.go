// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - QpsStrategy / KeyedQpsStrategy: token bucket usando golang.org/x/time/rate
//   - BucketStore: cache LRU limitado de buckets por chave, com limpeza de ociosos
//   - PreemptibleStrategy: contador de vagas com CAS, sem bloqueio
//   - Registry: registro estático nome -> construtor de estratégia
//   - stats: sinks de observabilidade em memória, Redis e Prometheus
package infra
