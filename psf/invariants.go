package psf

// validateInvariants checks the format-level invariants of spec §3:
//
//	(a) every format has at most one PAYLOAD field.
//	(b) every LENGTH field references exactly one target field that is
//	    itself PAYLOAD or variable-width.
//
// Invariant (c) (offsets derivable up to the first variable-width field) is
// a structural consequence of the grammar (fields are emitted strictly in
// declaration order) and is exercised by the interpreter's Emit/Absorb
// round trip rather than checked here. Invariant (d) (protocol_id
// uniqueness) is a Library-wide property, checked by psf/library.
func validateInvariants(p *Protocol, file string) []*ParseError {
	var errs []*ParseError
	for _, f := range p.Formats {
		payloadCount := 0
		for _, fld := range f.Fields {
			if fld.Semantic == SemanticPayload {
				payloadCount++
			}
		}
		if payloadCount > 1 {
			errs = append(errs, &ParseError{
				File: file, Line: f.Line, Kind: InvariantViolated,
				Msg: "format " + f.Name + " has more than one PAYLOAD field",
			})
		}

		for _, fld := range f.Fields {
			if fld.Semantic != SemanticLength {
				continue
			}
			if fld.LengthTarget == "" {
				errs = append(errs, &ParseError{
					File: file, Line: fld.Line, Kind: InvariantViolated,
					Msg: "LENGTH field " + fld.Name + " has no target",
				})
				continue
			}
			target := f.FieldByName(fld.LengthTarget)
			if target == nil {
				errs = append(errs, &ParseError{
					File: file, Line: fld.Line, Kind: InvariantViolated,
					Msg: "LENGTH field " + fld.Name + " targets unknown field " + fld.LengthTarget,
				})
				continue
			}
			if target.Semantic != SemanticPayload && !target.Variable {
				errs = append(errs, &ParseError{
					File: file, Line: fld.Line, Kind: InvariantViolated,
					Msg: "LENGTH field " + fld.Name + " targets " + fld.LengthTarget + ", which is neither PAYLOAD nor variable-width",
				})
			}
		}
	}
	return errs
}
