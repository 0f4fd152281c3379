package risk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// NoCommentMessage is the explanation for blank or too short comments.
const NoCommentMessage = "Sem comentário relevante para análise."

const (
	msgMixed           = "Feedback misto com ressalvas. Cliente menciona pontos positivos mas também críticas."
	msgNeutralPositive = "Comentário neutro com tendência positiva. Cliente parece satisfeito com ressalvas."
	msgNeutralNegative = "Comentário neutro com algumas ressalvas mencionadas."
	msgNeutral         = "Comentário neutro sem indicadores fortes de satisfação ou insatisfação."
)

// Explain renders a short Portuguese rationale for score. Quoted terms
// follow lexicon order and only include terms that pushed the score in
// the band's direction; a band with nothing to quote drops the list.
func Explain(score float64, b Breakdown, comment string) string {
	if utf8.RuneCountInString(strings.TrimSpace(comment)) < minTextRunes {
		return NoCommentMessage
	}

	switch {
	case score <= veryHighMax:
		if terms := topTerms(b.Negative, 3); terms != "" {
			return fmt.Sprintf("Comentário expressa forte insatisfação com indicadores críticos (%s). Requer atenção urgente.", terms)
		}
		return "Comentário expressa forte insatisfação. Requer atenção urgente."
	case score <= highMax:
		if terms := topTerms(b.Negative, 2); terms != "" {
			return fmt.Sprintf("Cliente demonstra insatisfação significativa. Termos identificados: %s.", terms)
		}
		return "Cliente demonstra insatisfação significativa."
	case score <= mediumMax:
		if len(b.Negative) > 0 && len(b.Positive) > 0 {
			return msgMixed
		}
		if terms := topTerms(b.Negative, 2); terms != "" {
			return fmt.Sprintf("Cliente expressa incômodo ou frustração moderada (%s).", terms)
		}
		return "Cliente expressa incômodo ou frustração moderada."
	case score < neutralMax:
		switch {
		case len(b.Positive) > 0:
			return msgNeutralPositive
		case len(b.Negative) > 0:
			return msgNeutralNegative
		default:
			return msgNeutral
		}
	case score >= praiseMin:
		if terms := topTerms(b.Positive, 3); terms != "" {
			return fmt.Sprintf("Cliente muito satisfeito! Elogio claro com termos positivos (%s).", terms)
		}
		return "Cliente muito satisfeito! Elogio claro."
	default:
		if terms := topTerms(b.Positive, 2); terms != "" {
			return fmt.Sprintf("Feedback positivo. Cliente demonstra satisfação (%s).", terms)
		}
		return "Feedback positivo. Cliente demonstra satisfação."
	}
}

// topTerms joins up to n terms that were not negated.
func topTerms(occs []Occurrence, n int) string {
	terms := make([]string, 0, n)
	for _, o := range occs {
		if o.Weight <= 0 {
			continue
		}
		terms = append(terms, o.Term)
		if len(terms) == n {
			break
		}
	}
	return strings.Join(terms, ", ")
}
