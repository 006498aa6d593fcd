package config

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alechenninger/keyinfo/internal/enccontext"
	"github.com/alechenninger/keyinfo/internal/keydata"
	"github.com/alechenninger/keyinfo/internal/keyinfo"
	"github.com/alechenninger/keyinfo/internal/keysmanager"
	"github.com/alechenninger/keyinfo/internal/xform"
)

// Provider constructs a configured keyinfo.Context and its collaborators
// from a Config. It mirrors the teacher's lazily-constructed, cached
// component provider, scoped down to the handful of components this
// module wires together.
type Provider struct {
	config *Config

	keysMngr keysmanager.Manager
	fetcher  xform.Fetcher
}

// NewProvider creates a new provider from configuration.
func NewProvider(config *Config) *Provider {
	return &Provider{config: config}
}

// KeysManager returns the configured keysmanager.Manager, constructing it
// on first call.
func (p *Provider) KeysManager(ctx context.Context) (keysmanager.Manager, error) {
	if p.keysMngr != nil {
		return p.keysMngr, nil
	}

	switch p.config.KeysManager.Type {
	case "", "memory":
		p.keysMngr = keysmanager.NewInMemory()
	case "aws_kms":
		mngr, err := keysmanager.NewAWSKMSManager(ctx, keysmanager.AWSKMSManagerConfig{
			Region:      p.config.KeysManager.AWSKMS.Region,
			AliasPrefix: p.config.KeysManager.AWSKMS.AliasPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("config: building aws_kms keys manager: %w", err)
		}
		p.keysMngr = mngr
	default:
		return nil, fmt.Errorf("config: unknown keys_manager.type %q", p.config.KeysManager.Type)
	}

	return p.keysMngr, nil
}

// Fetcher returns the configured retrieval Fetcher, constructing it on
// first call. Dereferences go out over plain HTTP; callers needing TLS
// pinning or mTLS should substitute their own http.Client via
// xform.FetcherFunc before wiring it into a Context.
func (p *Provider) Fetcher() xform.Fetcher {
	if p.fetcher != nil {
		return p.fetcher
	}

	httpFetcher := xform.FetcherFunc(func(ctx context.Context, uri string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("config: fetching %s: unexpected status %s", uri, resp.Status)
		}
		buf := make([]byte, 0, 4096)
		for {
			chunk := make([]byte, 4096)
			n, rerr := resp.Body.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if rerr != nil {
				break
			}
		}
		return buf, nil
	})

	groupName := p.config.Retrieval.GroupName
	if groupName == "" {
		groupName = "keyinfo-retrieval"
	}
	cacheBytes := p.config.Retrieval.CacheBytes
	if cacheBytes <= 0 {
		cacheBytes = 8 << 20
	}

	p.fetcher = xform.NewCachingFetcher(groupName, cacheBytes, httpFetcher)
	return p.fetcher
}

// NewContext builds a fully configured keyinfo.Context for a single
// KeyInfo read or write driven with the given operation and key
// requirement.
func (p *Provider) NewContext(ctx context.Context, operation keyinfo.Operation, req *keydata.KeyReq) (*keyinfo.Context, error) {
	mngr, err := p.KeysManager(ctx)
	if err != nil {
		return nil, err
	}

	reg := keydata.NewRegistry()
	if err := keyinfo.RegisterDefaults(reg); err != nil {
		return nil, fmt.Errorf("config: registering default key-data descriptors: %w", err)
	}

	kictx := keyinfo.NewContext(reg)
	kictx.KeysMngr = mngr
	kictx.Operation = operation
	kictx.KeyReq = req
	kictx.Fetcher = p.Fetcher()
	kictx.EncContextFactory = enccontext.NewFactory(reg)
	kictx.Base64LineSize = p.config.Base64LineSize
	kictx.CertsVerificationDepth = p.config.CertsVerificationDepth
	kictx.Flags = p.resolveFlags()

	kictx.SetMaxRetrievalMethodLevel(p.limitOrDefault(p.config.Limits.MaxRetrievalMethodLevel, keyinfo.DefaultMaxRetrievalMethodLevel))
	kictx.SetMaxKeyInfoReferenceLevel(p.limitOrDefault(p.config.Limits.MaxKeyInfoReferenceLevel, keyinfo.DefaultMaxKeyInfoReferenceLevel))
	kictx.SetMaxEncryptedKeyLevel(p.limitOrDefault(p.config.Limits.MaxEncryptedKeyLevel, keyinfo.DefaultMaxEncryptedKeyLevel))

	return kictx, nil
}

func (p *Provider) limitOrDefault(configured, fallback int) int {
	if configured <= 0 {
		return fallback
	}
	return configured
}

func (p *Provider) resolveFlags() keyinfo.Flags {
	f := p.config.Flags
	var flags keyinfo.Flags
	if f.DontStopOnKeyFound {
		flags |= keyinfo.FlagDontStopOnKeyFound
	}
	if f.StopOnUnknownChild {
		flags |= keyinfo.FlagStopOnUnknownChild
	}
	if f.KeyValueStopOnUnknownChild {
		flags |= keyinfo.FlagKeyValueStopOnUnknownChild
	}
	if f.RetrMethodStopOnUnknownHref {
		flags |= keyinfo.FlagRetrMethodStopOnUnknownHref
	}
	if f.RetrMethodStopOnMismatchHref {
		flags |= keyinfo.FlagRetrMethodStopOnMismatchHref
	}
	if f.EncKeyDontStopOnFailedDecrypt {
		flags |= keyinfo.FlagEncKeyDontStopOnFailedDecryption
	}
	return flags
}
