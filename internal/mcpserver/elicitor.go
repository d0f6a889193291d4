package mcpserver

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/debian777/kairos-mcp/internal/protocol"
)

// decisionSchema is the form presented for user_input steps. A single enum
// keeps the round-trip to one question.
var decisionSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"confirmation": {
			Type:        "string",
			Description: "approve to continue, or choose how to recover",
			Enum: []any{
				string(protocol.DecisionApprove),
				string(protocol.DecisionRetryStep),
				string(protocol.DecisionRetryChain),
				string(protocol.DecisionAbort),
			},
		},
	},
	Required: []string{"confirmation"},
}

// sessionElicitor asks the human behind an MCP session for a decision.
type sessionElicitor struct {
	session *mcp.ServerSession
	log     zerolog.Logger
}

// elicitorFor returns a session-backed elicitor, or nil when the client did
// not advertise the elicitation capability. Nil tells the state machine to
// answer CAPABILITY_REQUIRED instead of blocking on a prompt nobody will see.
func elicitorFor(session *mcp.ServerSession, log zerolog.Logger) protocol.Elicitor {
	if session == nil {
		return nil
	}
	init := session.InitializeParams()
	if init == nil || init.Capabilities == nil || init.Capabilities.Elicitation == nil {
		return nil
	}
	return &sessionElicitor{session: session, log: log.With().Str("component", "elicitor").Logger()}
}

func (e *sessionElicitor) Elicit(ctx context.Context, prompt string) (protocol.Decision, error) {
	res, err := e.session.Elicit(ctx, &mcp.ElicitParams{
		Message:         prompt,
		RequestedSchema: decisionSchema,
	})
	if err != nil {
		return "", err
	}
	if res.Action != "accept" {
		e.log.Debug().Str("action", res.Action).Msg("elicitation not accepted")
		return protocol.DecisionDeclined, nil
	}
	raw, _ := res.Content["confirmation"].(string)
	switch d := protocol.Decision(raw); d {
	case protocol.DecisionApprove, protocol.DecisionRetryStep, protocol.DecisionRetryChain, protocol.DecisionAbort:
		return d, nil
	default:
		return protocol.DecisionDeclined, nil
	}
}
