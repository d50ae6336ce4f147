package psf

import "strconv"

// Parse tokenizes and parses one .psf document. file is used only for
// diagnostics (ParseError.File); it does not affect parsing.
//
// Grammar (spec §6, bit-exact top-level form):
//
//	protocol <id> {
//	    name = "<string>";
//	    default_port = <u16>;
//	    transport = "TCP" | "UDP" | "BOTH";
//	    detection_score { commonality = <f64>; suspicion = <f64>; }
//	    ROLE CLIENT { PHASE HANDSHAKE { FORMAT <Name>; } PHASE DATA { FORMAT <Name>; } }
//	    ROLE SERVER { ... }
//	    FORMAT <Name> {
//	        FIELD <name> : <width_bytes|var> [= 0x<hex>|"<ascii>"] [SEMANTIC: <Tag> [target=<field>]];
//	    }
//	}
func Parse(file, src string) (*Protocol, []*ParseError) {
	c := newCursor(file, Tokenize(src))
	return parseProtocol(c)
}

func parseProtocol(c *cursor) (*Protocol, []*ParseError) {
	var errs []*ParseError
	fail := func(e *ParseError) (*Protocol, []*ParseError) {
		return nil, append(errs, e)
	}

	if _, e := c.expectIdent("protocol"); e != nil {
		return fail(e)
	}
	idTok, e := c.expect(IDENT)
	if e != nil {
		return fail(e)
	}
	if _, e := c.expect(LBRACE); e != nil {
		return fail(e)
	}

	p := &Protocol{
		ID:      idTok.Value,
		Roles:   map[RoleKind]*Role{},
		Formats: map[string]*Format{},
	}

	for {
		tok := c.peek()
		if tok.Type == RBRACE || tok.Type == EOF {
			break
		}
		if tok.Type != IDENT {
			errs = append(errs, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "unexpected token " + tok.Type.String()})
			c.next()
			continue
		}
		switch tok.Value {
		case "name":
			v, e := parseStringStmt(c, "name")
			if e != nil {
				errs = append(errs, e)
				continue
			}
			p.Name = v
		case "default_port":
			v, e := parseIntStmt(c, "default_port")
			if e != nil {
				errs = append(errs, e)
				continue
			}
			p.DefaultPort = uint16(v)
		case "transport":
			v, e := parseStringStmt(c, "transport")
			if e != nil {
				errs = append(errs, e)
				continue
			}
			switch v {
			case "TCP":
				p.Transport = TransportTCP
			case "UDP":
				p.Transport = TransportUDP
			case "BOTH":
				p.Transport = TransportBoth
			default:
				errs = append(errs, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "unknown transport " + v})
			}
		case "detection_score":
			ds, errsList := parseDetectionScore(c)
			errs = append(errs, errsList...)
			p.Detection = ds
		case "ROLE":
			role, errsList := parseRole(c)
			errs = append(errs, errsList...)
			if role != nil {
				p.Roles[role.Kind] = role
			}
		case "FORMAT":
			f, errsList := parseFormat(c)
			errs = append(errs, errsList...)
			if f != nil {
				if _, dup := p.Formats[f.Name]; dup {
					errs = append(errs, &ParseError{File: c.file, Line: f.Line, Kind: InvariantViolated, Msg: "duplicate format " + f.Name})
				} else {
					p.Formats[f.Name] = f
				}
			}
		default:
			errs = append(errs, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "unexpected top-level keyword " + tok.Value})
			c.next()
		}
	}

	if _, e := c.expect(RBRACE); e != nil {
		errs = append(errs, e)
	}

	if invErrs := validateInvariants(p, c.file); len(invErrs) > 0 {
		errs = append(errs, invErrs...)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

func parseStringStmt(c *cursor, name string) (string, *ParseError) {
	if _, e := c.expectIdent(name); e != nil {
		return "", e
	}
	if _, e := c.expect(EQUALS); e != nil {
		return "", e
	}
	tok, e := c.expect(STRING)
	if e != nil {
		return "", e
	}
	if _, e := c.expect(SEMI); e != nil {
		return "", e
	}
	return tok.Value, nil
}

func parseIntStmt(c *cursor, name string) (int64, *ParseError) {
	if _, e := c.expectIdent(name); e != nil {
		return 0, e
	}
	if _, e := c.expect(EQUALS); e != nil {
		return 0, e
	}
	tok, e := c.expect(INTEGER)
	if e != nil {
		return 0, e
	}
	if _, e := c.expect(SEMI); e != nil {
		return 0, e
	}
	n, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return 0, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "invalid integer " + tok.Value}
	}
	return n, nil
}

func parseFloatStmt(c *cursor, name string) (float64, *ParseError) {
	if _, e := c.expectIdent(name); e != nil {
		return 0, e
	}
	if _, e := c.expect(EQUALS); e != nil {
		return 0, e
	}
	tok, e := c.expect(INTEGER)
	if e != nil {
		return 0, e
	}
	if _, e := c.expect(SEMI); e != nil {
		return 0, e
	}
	f, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return 0, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "invalid float " + tok.Value}
	}
	return f, nil
}

func parseDetectionScore(c *cursor) (DetectionScore, []*ParseError) {
	var errs []*ParseError
	var ds DetectionScore
	if _, e := c.expectIdent("detection_score"); e != nil {
		return ds, append(errs, e)
	}
	if _, e := c.expect(LBRACE); e != nil {
		return ds, append(errs, e)
	}
	for {
		tok := c.peek()
		if tok.Type == RBRACE || tok.Type == EOF {
			break
		}
		switch tok.Value {
		case "commonality":
			v, e := parseFloatStmt(c, "commonality")
			if e != nil {
				errs = append(errs, e)
				continue
			}
			ds.Commonality = v
		case "suspicion":
			v, e := parseFloatStmt(c, "suspicion")
			if e != nil {
				errs = append(errs, e)
				continue
			}
			ds.Suspicion = v
		default:
			errs = append(errs, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "unexpected field in detection_score: " + tok.Value})
			c.next()
		}
	}
	if _, e := c.expect(RBRACE); e != nil {
		errs = append(errs, e)
	}
	return ds, errs
}

func parseRole(c *cursor) (*Role, []*ParseError) {
	var errs []*ParseError
	if _, e := c.expectIdent("ROLE"); e != nil {
		return nil, append(errs, e)
	}
	kindTok := c.peek()
	var kind RoleKind
	switch kindTok.Value {
	case "CLIENT":
		kind = RoleClient
	case "SERVER":
		kind = RoleServer
	default:
		return nil, append(errs, &ParseError{File: c.file, Line: kindTok.Line, Kind: UnexpectedToken, Msg: "expected CLIENT or SERVER, got " + kindTok.Value})
	}
	c.next()
	if _, e := c.expect(LBRACE); e != nil {
		return nil, append(errs, e)
	}

	role := &Role{Kind: kind}
	for {
		tok := c.peek()
		if tok.Type == RBRACE || tok.Type == EOF {
			break
		}
		if tok.Value != "PHASE" {
			errs = append(errs, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "expected PHASE, got " + tok.Value})
			c.next()
			continue
		}
		ph, phErrs := parsePhase(c)
		errs = append(errs, phErrs...)
		if ph != nil {
			role.Phases = append(role.Phases, ph)
		}
	}
	if _, e := c.expect(RBRACE); e != nil {
		errs = append(errs, e)
	}
	return role, errs
}

func parsePhase(c *cursor) (*Phase, []*ParseError) {
	var errs []*ParseError
	if _, e := c.expectIdent("PHASE"); e != nil {
		return nil, append(errs, e)
	}
	kindTok := c.peek()
	var kind PhaseKind
	switch kindTok.Value {
	case "HANDSHAKE":
		kind = PhaseHandshake
	case "ACTIVE", "DATA":
		kind = PhaseActive
	default:
		return nil, append(errs, &ParseError{File: c.file, Line: kindTok.Line, Kind: UnexpectedToken, Msg: "expected HANDSHAKE/ACTIVE/DATA, got " + kindTok.Value})
	}
	c.next()
	if _, e := c.expect(LBRACE); e != nil {
		return nil, append(errs, e)
	}
	ph := &Phase{Kind: kind}
	for {
		tok := c.peek()
		if tok.Type == RBRACE || tok.Type == EOF {
			break
		}
		if tok.Value != "FORMAT" {
			errs = append(errs, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "expected FORMAT, got " + tok.Value})
			c.next()
			continue
		}
		c.next() // FORMAT
		nameTok, e := c.expect(IDENT)
		if e != nil {
			errs = append(errs, e)
			continue
		}
		if _, e := c.expect(SEMI); e != nil {
			errs = append(errs, e)
			continue
		}
		ph.FormatRefs = append(ph.FormatRefs, nameTok.Value)
	}
	if _, e := c.expect(RBRACE); e != nil {
		errs = append(errs, e)
	}
	return ph, errs
}

func parseFormat(c *cursor) (*Format, []*ParseError) {
	var errs []*ParseError
	if _, e := c.expectIdent("FORMAT"); e != nil {
		return nil, append(errs, e)
	}
	nameTok, e := c.expect(IDENT)
	if e != nil {
		return nil, append(errs, e)
	}
	if _, e := c.expect(LBRACE); e != nil {
		return nil, append(errs, e)
	}
	f := &Format{Name: nameTok.Value, Line: nameTok.Line}
	seen := map[string]bool{}
	for {
		tok := c.peek()
		if tok.Type == RBRACE || tok.Type == EOF {
			break
		}
		if tok.Value != "FIELD" {
			errs = append(errs, &ParseError{File: c.file, Line: tok.Line, Kind: UnexpectedToken, Msg: "expected FIELD, got " + tok.Value})
			c.next()
			continue
		}
		fld, fldErrs := parseField(c)
		errs = append(errs, fldErrs...)
		if fld != nil {
			if seen[fld.Name] {
				errs = append(errs, &ParseError{File: c.file, Line: fld.Line, Kind: DuplicateField, Msg: "duplicate field " + fld.Name})
			} else {
				seen[fld.Name] = true
				f.Fields = append(f.Fields, fld)
			}
		}
	}
	if _, e := c.expect(RBRACE); e != nil {
		errs = append(errs, e)
	}
	return f, errs
}

func parseField(c *cursor) (*Field, []*ParseError) {
	var errs []*ParseError
	if _, e := c.expectIdent("FIELD"); e != nil {
		return nil, append(errs, e)
	}
	nameTok, e := c.expect(IDENT)
	if e != nil {
		return nil, append(errs, e)
	}
	if _, e := c.expect(COLON); e != nil {
		return nil, append(errs, e)
	}

	fld := &Field{Name: nameTok.Value, Line: nameTok.Line}

	widthTok := c.peek()
	if widthTok.Type == IDENT && widthTok.Value == "var" {
		c.next()
		fld.Variable = true
	} else {
		wTok, e := c.expect(INTEGER)
		if e != nil {
			return nil, append(errs, e)
		}
		n, err := strconv.Atoi(wTok.Value)
		if err != nil {
			return nil, append(errs, &ParseError{File: c.file, Line: wTok.Line, Kind: UnexpectedToken, Msg: "invalid width " + wTok.Value})
		}
		fld.Width = n
	}

	if c.peek().Type == EQUALS {
		c.next()
		lit := c.peek()
		switch lit.Type {
		case HEX:
			c.next()
			b, err := parseHexLiteral(lit.Value)
			if err != nil {
				errs = append(errs, &ParseError{File: c.file, Line: lit.Line, Kind: UnexpectedToken, Msg: err.Error()})
			} else {
				fld.HasLiteral = true
				fld.Literal = b
			}
		case STRING:
			c.next()
			fld.HasLiteral = true
			fld.Literal = []byte(lit.Value)
		default:
			errs = append(errs, &ParseError{File: c.file, Line: lit.Line, Kind: UnexpectedToken, Msg: "expected hex or string literal"})
		}
	}

	if c.peek().Type == IDENT && c.peek().Value == "SEMANTIC" {
		c.next()
		if _, e := c.expect(COLON); e != nil {
			errs = append(errs, e)
		}
		tagTok, e := c.expect(IDENT)
		if e != nil {
			errs = append(errs, e)
		} else {
			switch tagTok.Value {
			case "FIXED_VALUE":
				fld.Semantic = SemanticFixedValue
			case "FIXED_BYTES":
				fld.Semantic = SemanticFixedBytes
			case "LENGTH":
				fld.Semantic = SemanticLength
				if c.peek().Type == IDENT && c.peek().Value == "target" {
					c.next()
					if _, e := c.expect(EQUALS); e != nil {
						errs = append(errs, e)
					}
					targetTok, e := c.expect(IDENT)
					if e != nil {
						errs = append(errs, e)
					} else {
						fld.LengthTarget = targetTok.Value
					}
				} else {
					errs = append(errs, &ParseError{File: c.file, Line: tagTok.Line, Kind: InvariantViolated, Msg: "LENGTH field missing target="})
				}
			case "RANDOM":
				fld.Semantic = SemanticRandom
			case "PAYLOAD":
				fld.Semantic = SemanticPayload
			case "TIMESTAMP":
				fld.Semantic = SemanticTimestamp
			default:
				errs = append(errs, &ParseError{File: c.file, Line: tagTok.Line, Kind: UnknownSemantic, Msg: "unknown semantic tag " + tagTok.Value})
			}
		}
	}

	if _, e := c.expect(SEMI); e != nil {
		errs = append(errs, e)
	}

	if len(errs) > 0 {
		return fld, errs
	}
	return fld, nil
}

func parseHexLiteral(s string) ([]byte, error) {
	s = s[2:] // strip "0x"
	if len(s)%2 == 1 {
		s = "0" + s
	}
	out := make([]byte, len(s)/2)
	for i := 0; i < len(out); i++ {
		b, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}
