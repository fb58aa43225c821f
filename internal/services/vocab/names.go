package vocab

// rename pairs a microservice's 1.6 display name with its later one.
type rename struct {
	legacy  string
	current string
}

var microserviceRenames = []rename{
	{legacy: "Approve normalization (review)", current: "Approve normalization Review"},
	{legacy: "Store AIP (review)", current: "Store AIP Review"},
}

// NormalizeMicroservice maps a microservice display name to the variant the
// vocabulary's version renders. Names without a known rename are returned
// unchanged.
func (v *Vocabulary) NormalizeMicroservice(name string) string {
	for _, r := range microserviceRenames {
		var from, to string
		if v.version == V16 {
			from, to = r.current, r.legacy
		} else {
			from, to = r.legacy, r.current
		}
		if name == from {
			v.logger.Debug().Str("from", from).Str("to", to).Msg("Treating microservice under its versioned name")
			return to
		}
	}
	return name
}
