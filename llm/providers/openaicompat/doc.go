// Package openaicompat implements llm.Provider and llm.Embedder against
// OpenAI-compatible chat completion and embedding endpoints.
//
// Gemini is wired through its OpenAI compatibility layer:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "gemini",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai",
//	    DefaultModel: "gemini-2.5-flash",
//	}, logger)
//
// Images attached to a message are inlined as base64 data URLs, and
// ChatRequest.JSONMode maps to response_format=json_object.
package openaicompat
