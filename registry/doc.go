// Package registry discovers and instantiates providers.
//
// Adapters register a provider.Factory under their id; configuration
// then selects which ones to create:
//
//	reg := registry.New(registry.Config{Logger: logger, Secrets: resolver})
//	_ = reg.RegisterFactory(webhook.NewFactory())
//
//	out := reg.CreateProvider(ctx, "webhook", provider.Config{
//	    "baseUrl": "https://sms.example/v1",
//	    "apiKey":  "secretref:env:SMS_API_KEY",
//	})
//	if out.IsFailure() {
//	    return out.Err()
//	}
//
// Lookups of unknown ids are reported as failed results, never panics.
package registry
