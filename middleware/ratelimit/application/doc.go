// Package application contém os casos de uso do admission control.
//
// Ele depende apenas do pacote domain e não conhece net/http nem gRPC.
// Ex.: Gate.Admit(ctx, namespace, endpoint, rd) aplica o GlobalGate, resolve o
// limiter do endpoint no Container e devolve uma Decision + Permit.
package application
