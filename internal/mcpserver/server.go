// Package mcpserver exposes the kairos_* operations as MCP tools and
// implements the elicitation-backed user_input round-trip for clients that
// advertise the capability.
package mcpserver

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/debian777/kairos-mcp/internal/chains"
	"github.com/debian777/kairos-mcp/internal/proof"
	"github.com/debian777/kairos-mcp/internal/protocol"
	"github.com/debian777/kairos-mcp/internal/search"
)

// Deps is everything the tool handlers call into.
type Deps struct {
	Chains  *chains.Store
	Engine  *search.Engine
	Machine *protocol.Machine
	Version string
	Log     zerolog.Logger
}

// Handler builds the streamable HTTP handler for the MCP endpoint.
func Handler(deps Deps) http.Handler {
	server := newServer(deps)
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

func newServer(deps Deps) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "kairos", Version: deps.Version}, nil)

	type mintIn struct {
		Markdown    string `json:"markdown" jsonschema:"the protocol document to store"`
		LLMModelID  string `json:"llm_model_id,omitempty"`
		ForceUpdate bool   `json:"force_update,omitempty"`
	}
	type mintMeta struct {
		Count      int    `json:"count"`
		DurationMS int64  `json:"duration_ms"`
		LLMModelID string `json:"llm_model_id,omitempty"`
	}
	type mintOut struct {
		Status   string              `json:"status"`
		Items    []chains.MintedItem `json:"items"`
		Metadata mintMeta            `json:"metadata"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_mint",
		Description: "Store a markdown protocol as an ordered chain of steps.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in mintIn) (*mcp.CallToolResult, *mintOut, error) {
		res, err := deps.Chains.Mint(ctx, in.Markdown, in.LLMModelID, in.ForceUpdate)
		if err != nil {
			return nil, nil, err
		}
		return nil, &mintOut{
			Status: "stored",
			Items:  res.Items,
			Metadata: mintMeta{
				Count:      len(res.Items),
				DurationMS: res.DurationMS,
				LLMModelID: res.LLMModelID,
			},
		}, nil
	})

	type searchIn struct {
		Query string `json:"query"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_search",
		Description: "Find protocols matching a query; always returns an enforceable next action.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in searchIn) (*mcp.CallToolResult, *search.Response, error) {
		resp, err := deps.Engine.Search(ctx, in.Query)
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	})

	type uriIn struct {
		URI string `json:"uri"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_begin",
		Description: "Start executing a protocol at the given step URI.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in uriIn) (*mcp.CallToolResult, *protocol.StepResponse, error) {
		resp, err := deps.Machine.Begin(ctx, in.URI)
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	})

	type nextIn struct {
		URI      string          `json:"uri"`
		Solution *proof.Solution `json:"solution"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_next",
		Description: "Present a solution for the previous step's challenge and advance.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in nextIn) (*mcp.CallToolResult, *protocol.StepResponse, error) {
		resp, err := deps.Machine.Next(ctx, in.URI, in.Solution, elicitorFor(req.Session, deps.Log))
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	})

	type attestIn struct {
		URI          string  `json:"uri"`
		Outcome      string  `json:"outcome"`
		Message      string  `json:"message,omitempty"`
		QualityBonus float64 `json:"quality_bonus,omitempty"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_attest",
		Description: "Record the outcome of a protocol run for a step.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in attestIn) (*mcp.CallToolResult, *protocol.AttestResponse, error) {
		resp, err := deps.Machine.Attest(ctx, in.URI, in.Outcome, in.Message, in.QualityBonus)
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	})

	type updateIn struct {
		URIs        []string `json:"uris"`
		MarkdownDoc []string `json:"markdown_doc"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_update",
		Description: "Rewrite the body of existing steps (BODY markers respected).",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in updateIn) (*mcp.CallToolResult, *chains.UpdateResult, error) {
		resp, err := deps.Chains.Update(ctx, in.URIs, in.MarkdownDoc)
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	})

	type deleteIn struct {
		URIs  []string `json:"uris"`
		Chain bool     `json:"chain,omitempty"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_delete",
		Description: "Delete steps by URI, optionally with their whole chain.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in deleteIn) (*mcp.CallToolResult, *chains.UpdateResult, error) {
		resp, err := deps.Chains.Delete(ctx, in.URIs, in.Chain)
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	})

	type dumpIn struct {
		URI      string `json:"uri"`
		Protocol bool   `json:"protocol,omitempty"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "kairos_dump",
		Description: "Render a step, or its full protocol, back to markdown.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in dumpIn) (*mcp.CallToolResult, *chains.DumpResult, error) {
		resp, err := deps.Chains.Dump(ctx, in.URI, in.Protocol)
		if err != nil {
			return nil, nil, err
		}
		return nil, resp, nil
	})

	return server
}
