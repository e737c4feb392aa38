package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/assetstore"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/audit"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/catalog"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/chain"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/checkpoint"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/config"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/market"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/minter"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/pipeline"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/results"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/session"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/storage"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/verify"
)

// app holds state shared by every command.
type app struct {
	cfg        config.Config
	configPath string
	sessionID  string
	out        io.Writer
}

func (a *app) sessions(ctx context.Context) (session.Store, error) {
	return session.Open(ctx, session.Config{
		Backend:       a.cfg.Session.Backend,
		File:          a.cfg.Session.File,
		RedisAddr:     a.cfg.Session.RedisAddr,
		RedisPassword: a.cfg.Session.RedisPassword,
		RedisDB:       a.cfg.Session.RedisDB,
	})
}

// connectedWallet returns the wallet bound to the current session.
func (a *app) connectedWallet(ctx context.Context) (session.Session, error) {
	store, err := a.sessions(ctx)
	if err != nil {
		return session.Session{}, err
	}
	defer store.Close()

	s, err := store.Get(ctx, a.sessionID)
	if errors.Is(err, session.ErrNotConnected) {
		return session.Session{}, fmt.Errorf("%w: run `meme-minter connect <address>` first", err)
	}
	return s, err
}

// chainClients are the contract clients bound to the operator key.
type chainClients struct {
	backend  *ethclient.Client
	signer   *chain.Signer
	tx       *chain.Transactor
	minter   *minter.Client
	verifier *verify.Verifier
	market   *market.Client
}

func (c *chainClients) Close() {
	c.tx.Close()
	c.backend.Close()
}

func (a *app) dialChain(ctx context.Context) (*chainClients, error) {
	if err := a.cfg.RequireChain(); err != nil {
		return nil, err
	}
	cc := a.cfg.Chain

	minterAddr, ok := chain.ParseAddress(cc.MinterAddress)
	if !ok {
		return nil, fmt.Errorf("invalid MEME_MINTER_ADDRESS %q", cc.MinterAddress)
	}
	marketAddr, ok := chain.ParseAddress(cc.MarketAddress)
	if !ok {
		return nil, fmt.Errorf("invalid MEME_SALE_ADDRESS %q", cc.MarketAddress)
	}
	signer, err := chain.NewSigner(cc.PrivateKey, cc.ChainID)
	if err != nil {
		return nil, err
	}

	backend, err := chain.Dial(ctx, cc.RPCURL, cc.ChainID)
	if err != nil {
		return nil, err
	}
	tx := chain.NewTransactor(backend, signer, chain.TransactorConfig{
		ReceiptTimeout: a.cfg.Pipeline.ReceiptTimeout,
		ReceiptPoll:    a.cfg.Pipeline.ReceiptPoll,
	})

	token := chain.NewMinterContract(minterAddr, tx)
	mkt := chain.NewMarketContract(marketAddr, tx)

	return &chainClients{
		backend:  backend,
		signer:   signer,
		tx:       tx,
		minter:   minter.New(token, a.cfg.Gas.MintLimit),
		verifier: verify.New(token, a.verifyPolicy(), nil),
		market: market.New(token, mkt, backend, signer.Address(), market.Config{
			ApprovalGas:    a.cfg.Gas.ApprovalLimit,
			ListGas:        a.cfg.Gas.ListLimit,
			LookbackBlocks: cc.ListingLookback,
		}),
	}, nil
}

func (a *app) verifyPolicy() retry.Policy {
	p := a.cfg.Pipeline
	if p.VerifyBackoff == string(retry.KindExponential) {
		return retry.Exponential(p.VerifyMaxAttempts, p.VerifyDelay, 8*p.VerifyDelay)
	}
	return retry.Fixed(p.VerifyMaxAttempts, p.VerifyDelay)
}

func (a *app) assetStore(ctx context.Context) (assetstore.Store, func() error, error) {
	if err := a.cfg.RequireAssetStore(); err != nil {
		return nil, nil, err
	}
	as := a.cfg.AssetStore

	switch as.Backend {
	case "blob":
		bucket, err := storage.Open(ctx, as.BucketURL, "")
		if err != nil {
			return nil, nil, fmt.Errorf("open asset bucket: %w", err)
		}
		return assetstore.NewBlobStore(bucket), bucket.Close, nil
	default:
		client, err := assetstore.NewPinataClient(assetstore.PinataConfig{
			BaseURL:    as.PinataURL,
			JWT:        as.PinataJWT,
			APIKey:     as.PinataKey,
			SecretKey:  as.PinataSecret,
			Collection: as.Collection,
			Timeout:    as.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() error { return nil }, nil
	}
}

// closers runs cleanup functions in reverse order.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		_ = c[i]()
	}
}

// newPipeline wires the orchestrator and its bookkeeping subsystems.
func (a *app) newPipeline(ctx context.Context, cc *chainClients, loader pipeline.AssetLoader, onStage pipeline.StageFunc) (*pipeline.Pipeline, closers, error) {
	var cleanup closers
	fail := func(err error) (*pipeline.Pipeline, closers, error) {
		cleanup.close()
		return nil, nil, err
	}

	store, closeStore, err := a.assetStore(ctx)
	if err != nil {
		return fail(err)
	}
	cleanup.add(closeStore)

	journal, err := checkpoint.NewJournal(checkpoint.Config{Enabled: a.cfg.Journal.Dir != "", Dir: a.cfg.Journal.Dir})
	if err != nil {
		return fail(err)
	}

	resultsBucket, err := storage.Open(ctx, a.cfg.Results.BucketURL, a.cfg.Results.Prefix)
	if err != nil {
		return fail(fmt.Errorf("open results bucket: %w", err))
	}
	cleanup.add(resultsBucket.Close)

	cat, err := catalog.NewWriter(ctx, catalog.Config{PostgresDSN: a.cfg.Catalog.PostgresDSN})
	if err != nil {
		return fail(err)
	}
	cleanup.add(cat.Close)

	auditor, err := audit.NewEmitter(audit.Config{
		Enabled:   a.cfg.Audit.Enabled,
		Endpoint:  a.cfg.Audit.Endpoint,
		Dir:       a.cfg.Audit.Dir,
		NetworkID: a.cfg.Chain.ChainID,
		Contract:  a.cfg.Chain.MinterAddress,
		Producer:  audit.ProducerInfo{Name: "meme-minter", Version: Version, GitSHA: GitSHA},
	})
	if err != nil {
		return fail(err)
	}
	cleanup.add(auditor.Close)

	p, err := pipeline.New(pipeline.Config{
		Owner:           cc.signer.Address().Hex(),
		DefaultPrice:    a.cfg.Pipeline.DefaultPrice,
		AutoList:        a.cfg.Pipeline.AutoList,
		FinalizeDelay:   a.cfg.Pipeline.FinalizeDelay,
		InterAssetDelay: a.cfg.Pipeline.InterAssetDelay,
		UploadWorkers:   a.cfg.Perf.UploadWorkers,
		Metadata:        assetstore.MetadataOptions{ExternalURL: a.cfg.Pipeline.ExternalURL},
		OnStageUpdate:   onStage,
	}, pipeline.Deps{
		Store:    store,
		Minter:   cc.minter,
		Verifier: cc.verifier,
		Lister:   cc.market,
		Loader:   loader,
		Journal:  journal,
		Results:  results.NewWriter(resultsBucket, results.Config{Compress: a.cfg.Results.Compress, Parquet: a.cfg.Results.Parquet}),
		Catalog:  cat,
		Audit:    auditor,
	})
	if err != nil {
		return fail(err)
	}
	return p, cleanup, nil
}

// txLink renders a transaction hash, linked to the explorer when configured.
func (a *app) txLink(hash string) string {
	if a.cfg.Chain.ExplorerURL == "" || hash == "" {
		return hash
	}
	return a.cfg.Chain.ExplorerURL + "/tx/" + hash
}
