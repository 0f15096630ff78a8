package domain

import "net/textproto"

// RuntimeData é o snapshot imutável de uma requisição, montado uma única vez
// pela borda de transporte (HTTP/gRPC) antes do admission check.
type RuntimeData struct {
	method   string
	path     string
	clientIP string
	headers  map[string]string
}

// NewRuntimeData copia os headers informados; nomes são canonicalizados e
// apenas o primeiro valor de cada header é mantido.
func NewRuntimeData(method, path, clientIP string, headers map[string][]string) RuntimeData {
	rd := RuntimeData{method: method, path: path, clientIP: clientIP}
	if len(headers) > 0 {
		rd.headers = make(map[string]string, len(headers))
		for k, vs := range headers {
			if len(vs) == 0 {
				continue
			}
			rd.headers[textproto.CanonicalMIMEHeaderKey(k)] = vs[0]
		}
	}
	return rd
}

func (rd RuntimeData) Method() string   { return rd.method }
func (rd RuntimeData) Path() string     { return rd.path }
func (rd RuntimeData) ClientIP() string { return rd.clientIP }

// Header retorna o valor do header (case-insensitive) ou "" se ausente.
func (rd RuntimeData) Header(name string) string {
	if rd.headers == nil {
		return ""
	}
	return rd.headers[textproto.CanonicalMIMEHeaderKey(name)]
}
