package responder

import "strings"

// Rule is one deterministic fast-path reply. Rules are evaluated in
// order before any quota-gated generation and consume no budget.
type Rule struct {
	Name  string
	Match func(text string) bool
	Reply string
}

func containsAny(text string, terms ...string) bool {
	lower := strings.ToLower(text)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// DefaultRules returns the built-in fast paths.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:  "greeting",
			Match: func(t string) bool { return containsAny(t, "oi", "olá", "ola", "hello", "hi", "bom dia", "boa tarde") },
			Reply: "Olá! Bem-vindo ao nosso atendimento. Como posso ajudar você hoje?",
		},
		{
			Name:  "pricing",
			Match: func(t string) bool { return containsAny(t, "preço", "preco", "valor", "quanto custa", "price", "plano") },
			Reply: "Temos planos a partir de R$ 99/mês. Posso enviar a tabela de preços completa?",
		},
		{
			Name:  "hours",
			Match: func(t string) bool { return containsAny(t, "horário", "horario", "funciona", "aberto", "hours") },
			Reply: "Nosso atendimento funciona de segunda a sexta, das 9h às 18h.",
		},
		{
			Name:  "human",
			Match: func(t string) bool { return containsAny(t, "atendente", "humano", "pessoa", "human", "agent") },
			Reply: "Certo! Vou transferir você para um de nossos atendentes. Aguarde um momento, por favor.",
		},
	}
}

// FallbackReply is used when no fast path matches and generation is
// unavailable, disabled, over budget, or fails.
const FallbackReply = "Obrigado pela sua mensagem! Em breve um de nossos atendentes entrará em contato."
