package domain

// Nature classifies what a state record holds.
type Nature string

const (
	NatureOriginalPayload          Nature = "ORIGINAL_FHIR_PAYLOAD"
	NatureDisposition              Nature = "TECH_BY_DISPOSITION"
	NatureForwardRequest           Nature = "FORWARD_HTTP_REQUEST"
	NatureForwardRequestReplay     Nature = "FORWARDED_HTTP_REQUEST_REPLAY"
	NatureForwardResponse          Nature = "FORWARDED_HTTP_RESPONSE"
	NatureForwardResponseReplay    Nature = "FORWARDED_HTTP_RESPONSE_REPLAY"
	NatureForwardResponseError     Nature = "FORWARDED_HTTP_RESPONSE_ERROR"
	NatureForwardResponseReplayErr Nature = "FORWARDED_HTTP_RESPONSE_REPLAY_ERROR"
)

var natureDescriptions = map[Nature]string{
	NatureOriginalPayload:          "Original FHIR Payload",
	NatureDisposition:              "techByDesignDisposition",
	NatureForwardRequest:           "Forward HTTP Request",
	NatureForwardRequestReplay:     "Forwarded HTTP Request Replay",
	NatureForwardResponse:          "Forwarded HTTP Response",
	NatureForwardResponseReplay:    "Forwarded HTTP Response Replay",
	NatureForwardResponseError:     "Forwarded HTTP Response Error",
	NatureForwardResponseReplayErr: "Forwarded HTTP Response Replay Error",
}

// Description returns the human-readable label stored alongside the record.
func (n Nature) Description() string {
	if d, ok := natureDescriptions[n]; ok {
		return d
	}
	return string(n)
}

// IsReplay reports whether n is one of the replay-tagged natures.
func (n Nature) IsReplay() bool {
	switch n {
	case NatureForwardRequestReplay, NatureForwardResponseReplay, NatureForwardResponseReplayErr:
		return true
	}
	return false
}

// ForwardNature picks the request nature for a forward record.
func ForwardNature(replay bool) Nature {
	if replay {
		return NatureForwardRequestReplay
	}
	return NatureForwardRequest
}

// CompleteNature picks the response nature for a COMPLETE record.
func CompleteNature(replay bool) Nature {
	if replay {
		return NatureForwardResponseReplay
	}
	return NatureForwardResponse
}

// FailNature picks the response-error nature for a FAIL record.
func FailNature(replay bool) Nature {
	if replay {
		return NatureForwardResponseReplayErr
	}
	return NatureForwardResponseError
}
