// Package parser converts player text into Intent structs using the
// script's verb tables. Intentionally dumb: no NLP, just alias folding
// and token splits.
package parser

import (
	"strings"

	"storyloom/types"
)

var prepositions = map[string]bool{
	"on": true, "at": true, "to": true,
	"with": true, "in": true, "from": true,
	"about": true,
}

var articles = map[string]bool{
	"the": true, "a": true, "an": true,
}

// Parser folds a script's verb aliases into canonical verbs. A verb
// outside the tables passes through unchanged so behavior lookups can
// still try it.
type Parser struct {
	aliases  map[string]string // alias → canonical verb
	fallback string
}

// New builds a parser from the script's command_parser block. Aliases
// may be multi-word ("pick up"); canonical verbs register themselves.
func New(def types.ParserDef) *Parser {
	p := &Parser{
		aliases:  make(map[string]string),
		fallback: def.Fallback,
	}
	for verb, aliases := range def.Verbs {
		verb = strings.ToLower(verb)
		p.aliases[verb] = verb
		for _, a := range aliases {
			p.aliases[strings.ToLower(a)] = verb
		}
	}
	return p
}

// Fallback returns the script's response for inputs nothing handles.
func (p *Parser) Fallback() string {
	return p.fallback
}

// Knows reports whether the verb is a canonical verb or alias.
func (p *Parser) Knows(verb string) bool {
	_, ok := p.aliases[strings.ToLower(verb)]
	return ok
}

// Parse converts a raw command string into an Intent.
func (p *Parser) Parse(input string) types.Intent {
	input = strings.TrimSpace(input)
	if input == "" {
		return types.Intent{}
	}

	words := strings.Fields(strings.ToLower(input))

	// Two-word aliases ("pick up", "look at") fold before single words.
	verb := words[0]
	rest := words[1:]
	if len(words) >= 2 {
		if canon, ok := p.aliases[words[0]+" "+words[1]]; ok {
			verb = canon
			rest = words[2:]
		}
	}
	if canon, ok := p.aliases[verb]; ok {
		verb = canon
	}

	// Strip articles ("the", "a", "an").
	rest = stripArticles(rest)

	// The first preposition delimits target from indirect object.
	target, indirect := splitOnPreposition(rest)

	return types.Intent{
		Verb:     verb,
		Target:   target,
		Indirect: indirect,
	}
}

// stripArticles removes articles from the word list.
func stripArticles(words []string) []string {
	result := make([]string, 0, len(words))
	for _, w := range words {
		if !articles[w] {
			result = append(result, w)
		}
	}
	return result
}

// splitOnPreposition splits words on the first preposition. Words before
// it become the target, words after the indirect object. No preposition →
// everything is the target.
func splitOnPreposition(words []string) (target, indirect string) {
	for i, w := range words {
		if prepositions[w] {
			return strings.Join(words[:i], " "), strings.Join(words[i+1:], " ")
		}
	}
	return strings.Join(words, " "), ""
}
