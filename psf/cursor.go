package psf

// cursor walks a token stream for the parser. It is written to satisfy the
// spec's "Critical correctness rule" (§4.1, property P3, §9 design notes):
// the fix log for the source this spec was distilled from shows a bug where
// an assert-and-advance helper was called alongside a second, independent
// advance, silently collapsing semantic tags to no-ops. The defense here is
// structural per option (a) of §4.1: next() is the *only* method that
// mutates pos, and expect() calls it exactly once. The before/after check
// in expect() is option (b), kept as a second line of defense — cheap, and
// it turns any future violation into an immediate panic instead of a
// silent, hard-to-spot all-zero handshake.
//
// Ground: teemuteemu-caddy-language-server's internal/parser/parser.go
// peek()/next() pair, where next() is likewise the sole cursor mutator.
type cursor struct {
	tokens []Token
	pos    int
	file   string
}

func newCursor(file string, tokens []Token) *cursor {
	return &cursor{file: file, tokens: tokens}
}

// peek returns the current token without advancing.
func (c *cursor) peek() Token {
	if c.pos < len(c.tokens) {
		return c.tokens[c.pos]
	}
	return Token{Type: EOF}
}

// next returns the current token and advances by exactly one. This is the
// sole cursor mutator; no other method of cursor touches c.pos.
func (c *cursor) next() Token {
	t := c.peek()
	if t.Type != EOF {
		c.pos++
	}
	return t
}

// expect asserts the current token has type tt, consumes it via next(), and
// verifies the cursor moved by exactly one token.
func (c *cursor) expect(tt TokenType) (Token, *ParseError) {
	before := c.pos
	tok := c.peek()
	if tok.Type != tt {
		return tok, &ParseError{
			File: c.file, Line: tok.Line, Kind: UnexpectedToken,
			Msg: "expected " + tt.String() + ", got " + tok.Type.String(),
		}
	}
	consumed := c.next()
	after := c.pos
	if after != before+1 {
		panic("psf: cursor advanced by more than one token in expect()")
	}
	return consumed, nil
}

// expectIdent is expect(IDENT) with an additional check that the lexeme
// equals want (used for contextual keywords like "protocol", "ROLE", ...).
func (c *cursor) expectIdent(want string) (Token, *ParseError) {
	before := c.pos
	tok := c.peek()
	if tok.Type != IDENT || tok.Value != want {
		return tok, &ParseError{
			File: c.file, Line: tok.Line, Kind: UnexpectedToken,
			Msg: "expected '" + want + "', got " + tok.Value,
		}
	}
	consumed := c.next()
	if c.pos != before+1 {
		panic("psf: cursor advanced by more than one token in expectIdent()")
	}
	return consumed, nil
}
