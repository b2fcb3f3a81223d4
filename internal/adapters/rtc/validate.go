package rtc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

const (
	MaxSDPLen       = 64 << 10
	MaxCandidateLen = 1 << 10
)

// ValidateSDP parses sdp as a session description of the given type.
// The description itself is relayed untouched.
func ValidateSDP(typ webrtc.SDPType, sdp string) error {
	if sdp == "" {
		return fmt.Errorf("%w: empty sdp", domain.ErrInvalidPayload)
	}
	if len(sdp) > MaxSDPLen {
		return fmt.Errorf("%w: sdp too large", domain.ErrInvalidPayload)
	}
	desc := webrtc.SessionDescription{Type: typ, SDP: sdp}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: %s sdp: %v", domain.ErrInvalidPayload, typ, err)
	}
	return nil
}

// ParseCandidate decodes and checks an RTCIceCandidateInit. An empty
// candidate string marks end of candidates and is accepted.
func ParseCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var init webrtc.ICECandidateInit
	if len(raw) == 0 {
		return init, fmt.Errorf("%w: missing candidate", domain.ErrInvalidPayload)
	}
	if err := json.Unmarshal(raw, &init); err != nil {
		return init, fmt.Errorf("%w: candidate: %v", domain.ErrInvalidPayload, err)
	}
	if init.Candidate == "" {
		return init, nil
	}
	if len(init.Candidate) > MaxCandidateLen {
		return init, fmt.Errorf("%w: candidate too large", domain.ErrInvalidPayload)
	}
	if _, err := ice.UnmarshalCandidate(strings.TrimPrefix(init.Candidate, "candidate:")); err != nil {
		return init, fmt.Errorf("%w: candidate: %v", domain.ErrInvalidPayload, err)
	}
	return init, nil
}
