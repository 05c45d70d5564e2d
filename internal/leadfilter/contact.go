package leadfilter

// ContactMethodSatisfied reports whether method is covered either by an
// extracted contact value on the lead or by the scraper's
// channel-availability hints (RawLead.AvailableChannels).
func ContactMethodSatisfied(method string, raw RawLead) bool {
	switch method {
	case "email":
		return raw.Email != "" || channelAvailable(raw, "email")
	case "phone":
		return raw.Phone != "" || channelAvailable(raw, "phone")
	case "whatsapp":
		return raw.Contact != "" || channelAvailable(raw, "whatsapp")
	default:
		return channelAvailable(raw, method)
	}
}

func channelAvailable(raw RawLead, method string) bool {
	for _, c := range raw.AvailableChannels {
		if c == method {
			return true
		}
	}
	return false
}
