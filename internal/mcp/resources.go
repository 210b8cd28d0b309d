package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	uriScheme = "diabetes://"

	rulesURI  = uriScheme + "rules"
	corpusURI = uriScheme + "corpus"
)

var resourceURIs = []string{rulesURI, corpusURI}

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         rulesURI,
		Name:        "rules",
		Description: "Traffic-light thresholds used to classify patient metrics",
		MIMEType:    "application/json",
	}, s.handleRulesResource)

	s.server.AddResource(&mcp.Resource{
		URI:         corpusURI,
		Name:        "corpus",
		Description: "Guideline passages available for retrieval and citation",
		MIMEType:    "application/json",
	}, s.handleCorpusResource)
}

func (s *Server) handleRulesResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, s.components.Rules)
}

func (s *Server) handleCorpusResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, s.components.Corpus)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
