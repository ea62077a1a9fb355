package notation

import (
	"fmt"
	"strings"

	"github.com/metalagman/taskflow/internal/model"
)

// ParseCommands parses a space separated list of `name(args).modifier(args)` commands.
// On malformed input it returns the commands parsed so far, the unparsed remainder and an error.
func ParseCommands(s string) ([]model.FlowCommand, string, error) {
	p := cmdParser{src: s}
	var out []model.FlowCommand
	for {
		p.skipSpaces()
		if p.eof() {
			return out, "", nil
		}
		start := p.pos
		cmd, err := p.command()
		if err != nil {
			return out, strings.TrimSpace(s[start:]), err
		}
		out = append(out, cmd)
	}
}

// FormatCommands renders commands in the canonical form accepted by ParseCommands.
func FormatCommands(cmds []model.FlowCommand) string {
	parts := make([]string, 0, len(cmds))
	for _, c := range cmds {
		var b strings.Builder
		b.WriteString(c.Name)
		writeArgs(&b, c.Args)
		for _, m := range c.Modifiers {
			b.WriteString(".")
			b.WriteString(m.Name)
			writeArgs(&b, m.Args)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, " ")
}

func writeArgs(b *strings.Builder, args []string) {
	b.WriteString("(")
	b.WriteString(strings.Join(args, ", "))
	b.WriteString(")")
}

type cmdParser struct {
	src string
	pos int
}

func (p *cmdParser) eof() bool { return p.pos >= len(p.src) }

func (p *cmdParser) peek() byte { return p.src[p.pos] }

func (p *cmdParser) skipSpaces() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t') {
		p.pos++
	}
}

func (p *cmdParser) command() (model.FlowCommand, error) {
	name, args, err := p.call()
	if err != nil {
		return model.FlowCommand{}, err
	}
	cmd := model.FlowCommand{Name: name, Args: args}
	for !p.eof() && p.peek() == '.' {
		p.pos++
		mName, mArgs, err := p.call()
		if err != nil {
			return model.FlowCommand{}, fmt.Errorf("modifier of %s: %w", name, err)
		}
		cmd.Modifiers = append(cmd.Modifiers, model.Modifier{Name: mName, Args: mArgs})
	}
	if !p.eof() && p.peek() != ' ' && p.peek() != '\t' {
		return model.FlowCommand{}, fmt.Errorf("unexpected %q after %s", p.peek(), name)
	}
	return cmd, nil
}

func (p *cmdParser) call() (string, []string, error) {
	start := p.pos
	for !p.eof() && isNameByte(p.peek(), p.pos == start) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" {
		return "", nil, fmt.Errorf("expected command name at offset %d", start)
	}
	if p.eof() || p.peek() != '(' {
		return "", nil, fmt.Errorf("expected ( after %s", name)
	}
	p.pos++
	argStart := p.pos
	depth := 0
	for ; !p.eof(); p.pos++ {
		switch p.peek() {
		case '(', '[':
			depth++
		case ']':
			depth--
		case ')':
			if depth == 0 {
				raw := p.src[argStart:p.pos]
				p.pos++
				return name, splitArgs(raw), nil
			}
			depth--
		}
	}
	return "", nil, fmt.Errorf("unterminated arguments of %s", name)
}

// splitArgs splits on commas outside of nested brackets.
func splitArgs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	depth, last := 0, 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(raw[last:i]))
				last = i + 1
			}
		}
	}
	return append(out, strings.TrimSpace(raw[last:]))
}

func isNameByte(c byte, first bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case c >= '0' && c <= '9', c == '-':
		return !first
	}
	return false
}
