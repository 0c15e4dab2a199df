// Package provider defines the contract between the orchestration layer and
// backend adapters.
//
// A Provider sends a SendRequest and reports its health. Everything else a
// backend can do is optional and discovered through interface satisfaction:
//
//	if caps, ok := provider.CapabilitiesOf(p); ok && caps.SupportsScheduling {
//	    ...
//	}
//	if cancelled, supported := provider.Cancel(ctx, p, id); supported { ... }
//
// The lookups see through decorators that implement Unwrapper, so a
// provider wrapped in middleware keeps its optional capabilities.
//
// Send returns an Outcome rather than an error:
//
//	out := p.Send(ctx, provider.ShortText{
//	    Envelope: provider.Envelope{To: "+15550100"},
//	    Text:     "hello",
//	})
//	if out.IsFailure() {
//	    log.Printf("send failed: %s", out.Err().Code)
//	}
package provider
