package conversation

import (
	"context"
	"fmt"

	"github.com/oakdemir/pharmachat/internal/model/chat"
)

// unavailableGateway stands in when no completion model is configured; every
// call fails with the gateway taxonomy instead of a nil dereference.
type unavailableGateway struct{}

// NewUnavailableGateway returns a gateway that always reports the completion
// provider as unconfigured.
func NewUnavailableGateway() Gateway {
	return unavailableGateway{}
}

func (unavailableGateway) Generate(context.Context, string, []chat.Message, string) (string, error) {
	return "", fmt.Errorf("%w: completion model not configured", chat.ErrGateway)
}

func (unavailableGateway) Stream(context.Context, string, []chat.Message, string) (chat.TokenStream, error) {
	return nil, fmt.Errorf("%w: completion model not configured", chat.ErrGateway)
}
