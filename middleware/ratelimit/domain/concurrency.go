package domain

// Preemptible é implementado por limiters que reservam uma vaga no Acquire.
//
// Cada Acquire que retornou true deve ser seguido de exatamente um Release,
// seja qual for o desfecho da requisição. Quem chama não deve invocar Release
// diretamente: use application.Permit, que garante a liberação única.
type Preemptible interface {
	Release()
}
