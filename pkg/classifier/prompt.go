package classifier

import (
	"strings"
	"text/template"
)

const systemPrompt = `Você é especialista em experiência do cliente e classifica o risco reputacional de comentários de pesquisas NPS.
Elogios claros são Baixo; críticas severas são Alto ou Muito Alto.
Responda apenas com um objeto JSON, sem markdown e sem texto adicional.`

var promptTemplate = template.Must(template.New("prompt").Parse(`Classifique o comentário abaixo, de uma pesquisa NPS, quanto ao risco para a empresa e descreva o sentimento do cliente.

Contexto do atendimento: {{if .Description}}{{.Description}}{{else}}não informado{{end}}
Comentário: "{{.Comment}}"

Graus possíveis:
- Muito Alto: ameaça legal (Procon, processo, advogado, Reclame Aqui), acusação de fraude ou golpe, revolta extrema, "nunca mais volto", ofensas em caixa alta.
- Alto: insatisfação forte (péssimo, horrível), decepção, vários problemas graves, não recomendaria.
- Médio: reclamação moderada (demora, erro, problema), feedback misto, sugestões de melhoria.
- Baixo: elogio, satisfação, agradecimento ou comentário neutro sem queixa.

Exemplos:
- "Agendamento rápido e cordialidade no atendimento" => Baixo
- "Atendimento ok mas demorou" => Médio
- "Péssimo, nunca mais volto" => Muito Alto

Formato da resposta:
{"grau_risco": "Muito Alto|Alto|Médio|Baixo", "explicacao": "frase curta sobre o sentimento"}`))

// BuildPrompt renders the user prompt for one description/comment pair.
func BuildPrompt(description, comment string) string {
	var b strings.Builder
	data := struct{ Description, Comment string }{
		Description: strings.TrimSpace(description),
		Comment:     strings.ReplaceAll(strings.TrimSpace(comment), `"`, `'`),
	}
	if err := promptTemplate.Execute(&b, data); err != nil {
		// Execute only fails on writer errors; strings.Builder never returns one.
		return ""
	}
	return b.String()
}
