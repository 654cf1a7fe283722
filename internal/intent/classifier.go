// Package intent decides how an inbound message is handled before the agent sees it.
package intent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxShortReply bounds closings and replies adopted as a name.
const maxShortReply = 40

// Classifier recognizes the phrases the router acts on. RuleClassifier is the
// phrase-list implementation; other implementations can replace it without
// touching the router.
type Classifier interface {
	IsClosing(text string) bool
	IsStatusQuery(text string) bool
	// IsNameQuestion reports whether an assistant turn asked for the customer's name.
	IsNameQuestion(assistantText string) bool
	// IsAddressReconfirmQuestion reports whether an assistant turn asked a
	// recurring customer to confirm their stored address.
	IsAddressReconfirmQuestion(assistantText string) bool
	IsConfirmation(text string) bool
	// ExtractName returns X from an explicit "meu nome é X" style sentence.
	ExtractName(text string) (string, bool)
}

// RuleClassifier implements Classifier with Portuguese phrase lists.
type RuleClassifier struct {
	ClosingWords       []string
	StatusPhrases      []string
	NameQuestions      []string
	AddressQuestions   []string
	ConfirmationPhrase []string
}

var (
	defaultClosingWords = []string{
		"obrigado", "obrigada", "valeu", "ok", "beleza", "show",
		"perfeito", "maravilha", "blz", "vlw", "tmj", "agradeço",
	}
	defaultStatusPhrases = []string{
		"cadê meu pedido", "cade meu pedido",
		"meu pedido já saiu", "meu pedido ja saiu",
		"onde está meu pedido", "onde esta meu pedido",
		"quanto tempo falta", "vai demorar",
		"já saiu pra entrega", "ja saiu pra entrega",
	}
	defaultNameQuestions = []string{
		"qual o seu nome", "qual seu nome", "como você se chama", "como voce se chama",
	}
	defaultAddressQuestions = []string{
		"continuam como", "continua como", "endereço continua", "mesmo endereço?",
	}
	defaultConfirmations = []string{
		"sim", "isso", "correto", "certo", "pode ser", "confirmo", "está certo",
		"esta certo", "tá certo", "ta certo", "exato", "continua", "mesmo endereço",
	}

	statusOrderPattern = regexp.MustCompile(`status do (meu )?pedido`)
	namePattern        = regexp.MustCompile(`(?i)(?:meu nome (?:é|e)|me chamo)\s+(.+)`)
)

// NewRuleClassifier returns a classifier loaded with the default phrase lists.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{
		ClosingWords:       defaultClosingWords,
		StatusPhrases:      defaultStatusPhrases,
		NameQuestions:      defaultNameQuestions,
		AddressQuestions:   defaultAddressQuestions,
		ConfirmationPhrase: defaultConfirmations,
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// IsClosing matches short thanks or acknowledgements.
func (c *RuleClassifier) IsClosing(text string) bool {
	t := normalize(text)
	if t == "" || utf8.RuneCountInString(t) > maxShortReply {
		return false
	}
	for _, w := range c.ClosingWords {
		if strings.HasPrefix(t, w) {
			return true
		}
	}
	return false
}

// IsStatusQuery matches explicit status requests and delivery inquiries.
func (c *RuleClassifier) IsStatusQuery(text string) bool {
	t := normalize(text)
	if t == "" {
		return false
	}
	if statusOrderPattern.MatchString(t) {
		return true
	}
	if strings.Contains(t, "status") && strings.Contains(t, "pedido") {
		return true
	}
	return containsAny(t, c.StatusPhrases)
}

// IsNameQuestion reports whether the assistant asked for the customer's name.
func (c *RuleClassifier) IsNameQuestion(assistantText string) bool {
	return containsAny(normalize(assistantText), c.NameQuestions)
}

// IsAddressReconfirmQuestion reports whether the assistant asked to confirm a stored address.
func (c *RuleClassifier) IsAddressReconfirmQuestion(assistantText string) bool {
	return containsAny(normalize(assistantText), c.AddressQuestions)
}

// IsConfirmation matches replies that open with an affirmative phrase.
func (c *RuleClassifier) IsConfirmation(text string) bool {
	t := normalize(text)
	for _, p := range c.ConfirmationPhrase {
		if startsWithWord(t, p) {
			return true
		}
	}
	return false
}

// ExtractName pulls the name out of "meu nome é X" or "me chamo X".
func (c *RuleClassifier) ExtractName(text string) (string, bool) {
	m := namePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", false
	}
	name := strings.TrimRightFunc(strings.TrimSpace(m[1]), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	if name == "" {
		return "", false
	}
	return name, true
}

func containsAny(t string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

// startsWithWord reports whether t begins with w followed by a non-letter or the end.
func startsWithWord(t, w string) bool {
	if !strings.HasPrefix(t, w) {
		return false
	}
	rest := t[len(w):]
	if rest == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

var _ Classifier = (*RuleClassifier)(nil)
