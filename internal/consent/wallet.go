package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"time"

	"github.com/verso-wallet/verso/internal/cache"
	"github.com/verso-wallet/verso/internal/chain"
	"github.com/verso-wallet/verso/internal/chain/verusid"
	"github.com/verso-wallet/verso/internal/fileutil"
	"github.com/verso-wallet/verso/internal/keychain"
	"github.com/verso-wallet/verso/internal/securemem"
	"github.com/verso-wallet/verso/internal/txbuilder"
	"github.com/verso-wallet/verso/internal/vault"
	walleterr "github.com/verso-wallet/verso/pkg/errors"
)

// ChainClient is the UTXO-data backend (electrum mirrors).
type ChainClient interface {
	GetBalance(ctx context.Context, address string) (*chain.Balance, error)
	ListUnspent(ctx context.Context, address string) ([]chain.UTXO, error)
	ListTransactions(ctx context.Context, address string) ([]chain.TxRef, error)
	GetTransactionVerbose(ctx context.Context, txid string) (*chain.TxDetail, error)
	GetRawTransaction(ctx context.Context, txid string) (string, error)
	GetCurrentBlockHeight(ctx context.Context) (int64, error)
	EstimateFee(ctx context.Context, blocks int) (int64, error)
	Broadcast(ctx context.Context, rawHex string) (string, error)
}

// ExplorerClient is the block-explorer backend used for multi-currency
// data that electrum does not serve.
type ExplorerClient interface {
	GetCurrencyBalances(ctx context.Context, address string) (map[string]*big.Int, error)
	GetAddressUTXOs(ctx context.Context, address string) ([]chain.UTXO, error)
	GetTransactionDetail(ctx context.Context, txid string) (*chain.TxDetail, error)
}

// IdentityClient resolves on-chain identities.
type IdentityClient interface {
	GetIdentity(ctx context.Context, nameOrAddress string) (*verusid.IdentityResult, error)
}

const vaultFilePermissions = 0o600

// WalletOptions configures a Wallet.
type WalletOptions struct {
	Params    keychain.Params
	VaultPath string

	// LimiterPath persists unlock throttling across restarts.
	LimiterPath string

	// LimiterKey protects the limiter state file from offline edits.
	LimiterKey []byte

	AutoLock time.Duration

	Chain    ChainClient
	Explorer ExplorerClient
	Identity IdentityClient

	// TrustedOrigins are senders with full wallet access (the local
	// UI). All other origins get the restricted dApp surface.
	TrustedOrigins []string

	// WebhookKey signs consent results delivered to dApp callbacks.
	WebhookKey []byte
}

// Wallet orchestrates the vault, the unlocked session, network
// clients, and dApp consent flows.
type Wallet struct {
	params      keychain.Params
	vaultPath   string
	autoLock    time.Duration
	chainClient ChainClient
	explorer    ExplorerClient
	idClient    IdentityClient

	session *Session
	pending *PendingStore
	limiter *UnlockLimiter
	webhook *WebhookSender

	trusted map[string]struct{}

	balances *cache.BalanceCache
	txCache  *cache.TxDetailCache
}

// NewWallet wires a wallet from its options.
func NewWallet(opts WalletOptions) *Wallet {
	if opts.Params.Name == "" {
		opts.Params = keychain.MainNetParams
	}
	if opts.AutoLock <= 0 {
		opts.AutoLock = DefaultAutoLock
	}

	trusted := make(map[string]struct{}, len(opts.TrustedOrigins))
	for _, origin := range opts.TrustedOrigins {
		trusted[origin] = struct{}{}
	}

	return &Wallet{
		params:      opts.Params,
		vaultPath:   opts.VaultPath,
		autoLock:    opts.AutoLock,
		chainClient: opts.Chain,
		explorer:    opts.Explorer,
		idClient:    opts.Identity,
		pending:     NewPendingStore(),
		limiter:     NewUnlockLimiter(opts.LimiterPath, opts.LimiterKey),
		webhook:     NewWebhookSender(opts.WebhookKey),
		trusted:     trusted,
		balances:    cache.NewBalanceCache(),
		txCache:     cache.NewTxDetailCache(),
	}
}

// VaultExists reports whether a vault file is present.
func (w *Wallet) VaultExists() bool {
	_, err := os.Stat(w.vaultPath)
	return err == nil
}

func (w *Wallet) loadVault() (*vault.Vault, error) {
	data, err := os.ReadFile(w.vaultPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, walleterr.ErrVaultNotFound
		}
		return nil, walleterr.Wrap(err, "reading vault file")
	}
	var v vault.Vault
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, walleterr.Wrap(walleterr.ErrDecode, "vault file is corrupt: %v", err)
	}
	return &v, nil
}

func (w *Wallet) saveVault(v *vault.Vault) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return walleterr.Wrap(err, "marshaling vault")
	}
	return fileutil.WriteAtomic(w.vaultPath, data, vaultFilePermissions)
}

// Create generates a fresh wallet, seals it under password, and
// unlocks the session. The returned mnemonic is shown to the user once
// and never persisted in word form.
func (w *Wallet) Create(password string) (mnemonic, address string, err error) {
	if w.VaultExists() {
		return "", "", walleterr.ErrVaultExists
	}

	mnemonic, err = keychain.GenerateMnemonic(256)
	if err != nil {
		return "", "", err
	}
	address, err = w.initialize(mnemonic, password)
	if err != nil {
		return "", "", err
	}
	return mnemonic, address, nil
}

// Import restores a wallet from an existing mnemonic.
func (w *Wallet) Import(mnemonic, password string) (address string, err error) {
	if w.VaultExists() {
		return "", walleterr.ErrVaultExists
	}

	mnemonic = keychain.NormalizeMnemonicInput(mnemonic)
	if err := keychain.ValidateMnemonic(mnemonic); err != nil {
		return "", err
	}
	return w.initialize(mnemonic, password)
}

func (w *Wallet) initialize(mnemonic, password string) (string, error) {
	seed, err := keychain.MnemonicToSeed(mnemonic)
	if err != nil {
		return "", err
	}
	defer securemem.Zero(seed)

	entropy, err := keychain.MnemonicToEntropy(mnemonic)
	if err != nil {
		return "", err
	}
	defer securemem.Zero(entropy)

	key, err := keychain.DeriveAccount(seed, w.params, 0)
	if err != nil {
		return "", err
	}
	defer key.Destroy()

	payload := &vault.Payload{
		Entropy: entropy,
		Seed:    seed,
		Address: key.Account.Address,
	}
	sealed, err := vault.Seal(payload, password, time.Now().Unix())
	if err != nil {
		return "", err
	}
	if err := w.saveVault(sealed); err != nil {
		return "", err
	}

	if err := w.startSession(seed, []Account{{Index: 0, Address: key.Account.Address}}); err != nil {
		return "", err
	}
	return key.Account.Address, nil
}

func (w *Wallet) startSession(seed []byte, accounts []Account) error {
	secureSeed, err := securemem.FromSlice(seed)
	if err != nil {
		return err
	}
	if w.session != nil {
		w.session.Lock()
	}
	w.session = NewSession(secureSeed, w.params, accounts, w.autoLock, nil)
	return nil
}

// Unlock opens the vault under the persistent attempt limiter and
// starts a session. A wrong password counts against the limiter; a
// correct one resets it.
func (w *Wallet) Unlock(password string) error {
	if err := w.limiter.Check(); err != nil {
		return err
	}

	v, err := w.loadVault()
	if err != nil {
		return err
	}

	payload, err := vault.Open(v, password)
	if err != nil {
		if recordErr := w.limiter.RecordFailure(); recordErr != nil {
			return recordErr
		}
		return err
	}
	defer payload.Destroy()

	if err := w.limiter.RecordSuccess(); err != nil {
		return err
	}
	return w.startSession(payload.Seed, []Account{{Index: 0, Address: payload.Address}})
}

// Lock zeroes the in-memory seed. In-flight operations holding a
// derived key finish normally.
func (w *Wallet) Lock() {
	if w.session != nil {
		w.session.Lock()
	}
}

// IsLocked reports whether no usable session exists.
func (w *Wallet) IsLocked() bool {
	return w.session == nil || w.session.IsLocked()
}

// Reset deletes the vault file. The caller is responsible for user
// confirmation; without the mnemonic the funds are gone.
func (w *Wallet) Reset() error {
	w.Lock()
	w.balances.Clear()
	w.txCache.Clear()
	if err := os.Remove(w.vaultPath); err != nil && !os.IsNotExist(err) {
		return walleterr.Wrap(err, "removing vault file")
	}
	return nil
}

// activeSession returns the session or a locked error.
func (w *Wallet) activeSession() (*Session, error) {
	if w.IsLocked() {
		return nil, walleterr.ErrWalletLocked
	}
	w.session.Touch()
	return w.session, nil
}

// RevealMnemonic re-verifies the password and regenerates the mnemonic
// from vault entropy. Attempts count against the unlock limiter so the
// reveal path cannot be used as a password oracle.
func (w *Wallet) RevealMnemonic(password string) (string, error) {
	if err := w.limiter.Check(); err != nil {
		return "", err
	}

	v, err := w.loadVault()
	if err != nil {
		return "", err
	}
	payload, err := vault.Open(v, password)
	if err != nil {
		if recordErr := w.limiter.RecordFailure(); recordErr != nil {
			return "", recordErr
		}
		return "", err
	}
	defer payload.Destroy()

	if err := w.limiter.RecordSuccess(); err != nil {
		return "", err
	}
	return keychain.EntropyToMnemonic(payload.Entropy)
}

// ExportWIF re-verifies the password and returns the active account's
// private key in WIF.
func (w *Wallet) ExportWIF(password string) (string, error) {
	session, err := w.activeSession()
	if err != nil {
		return "", err
	}

	// The session being open is not enough for key export.
	v, err := w.loadVault()
	if err != nil {
		return "", err
	}
	payload, err := vault.Open(v, password)
	if err != nil {
		return "", err
	}
	payload.Destroy()

	key, err := session.DeriveActiveKey()
	if err != nil {
		return "", err
	}
	defer key.Destroy()

	wif, err := keychain.EncodeWIF(w.params, key.PrivKey.Bytes())
	if err != nil {
		return "", err
	}

	// Decode the export back and compare before handing it out; a key
	// the user cannot re-import is worse than no export at all.
	decoded, err := keychain.DecodeWIF(w.params, wif)
	if err != nil {
		return "", walleterr.Wrap(err, "verifying exported key")
	}
	defer decoded.Destroy()
	if !bytes.Equal(decoded.Bytes(), key.PrivKey.Bytes()) {
		return "", walleterr.Wrap(walleterr.ErrValidation, "exported key failed round-trip check")
	}

	return wif, nil
}

// AddAccount derives the next account and registers it with the
// session.
func (w *Wallet) AddAccount(index uint32) (Account, error) {
	session, err := w.activeSession()
	if err != nil {
		return Account{}, err
	}

	seed, err := session.SeedCopy()
	if err != nil {
		return Account{}, err
	}
	defer seed.Destroy()

	key, err := keychain.DeriveAccount(seed.Bytes(), w.params, index)
	if err != nil {
		return Account{}, err
	}
	defer key.Destroy()

	account := Account{Index: index, Address: key.Account.Address}
	if err := session.AddAccount(account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// SwitchAccount changes the session's active account.
func (w *Wallet) SwitchAccount(index uint32) error {
	session, err := w.activeSession()
	if err != nil {
		return err
	}
	return session.SwitchAccount(index)
}

// RenameAccount sets the display label of an account.
func (w *Wallet) RenameAccount(index uint32, name string) error {
	session, err := w.activeSession()
	if err != nil {
		return err
	}
	return session.RenameAccount(index, name)
}

// Accounts lists the session's accounts.
func (w *Wallet) Accounts() ([]Account, error) {
	session, err := w.activeSession()
	if err != nil {
		return nil, err
	}
	return session.Accounts(), nil
}

// BalanceResult carries a balance and whether it came from the cache
// after a network failure.
type BalanceResult struct {
	Balance chain.Balance
	Stale   bool
	AsOf    time.Time
}

// Balance fetches the native balance for the active account, falling
// back to the last cached value when the network is unreachable.
func (w *Wallet) Balance(ctx context.Context) (*BalanceResult, error) {
	session, err := w.activeSession()
	if err != nil {
		return nil, err
	}
	account, err := session.ActiveAccount()
	if err != nil {
		return nil, err
	}

	balance, netErr := w.chainClient.GetBalance(ctx, account.Address)
	if netErr != nil {
		if entry, ok, _ := w.balances.Get(account.Address, ""); ok {
			return &BalanceResult{Balance: entry.Balance, Stale: true, AsOf: entry.UpdatedAt}, nil
		}
		return nil, netErr
	}

	w.balances.Set(cache.BalanceEntry{Address: account.Address, Balance: *balance})
	return &BalanceResult{Balance: *balance, AsOf: time.Now()}, nil
}

// CurrencyBalancesResult carries per-currency balances and whether
// they came from the cache after a network failure.
type CurrencyBalancesResult struct {
	Balances map[string]*big.Int
	Stale    bool
	AsOf     time.Time
}

// CurrencyBalances fetches per-currency balances for the active
// account from the explorer, falling back to the last cached values
// when the network is unreachable.
func (w *Wallet) CurrencyBalances(ctx context.Context) (*CurrencyBalancesResult, error) {
	session, err := w.activeSession()
	if err != nil {
		return nil, err
	}
	account, err := session.ActiveAccount()
	if err != nil {
		return nil, err
	}

	balances, netErr := w.explorer.GetCurrencyBalances(ctx, account.Address)
	if netErr != nil {
		cached := w.balances.CurrencyEntries(account.Address)
		if len(cached) == 0 {
			return nil, netErr
		}
		result := &CurrencyBalancesResult{Balances: make(map[string]*big.Int, len(cached)), Stale: true}
		for _, entry := range cached {
			result.Balances[entry.Currency] = new(big.Int).Set(entry.Reserve)
			if result.AsOf.IsZero() || entry.UpdatedAt.Before(result.AsOf) {
				result.AsOf = entry.UpdatedAt
			}
		}
		return result, nil
	}

	for name, amount := range balances {
		w.balances.Set(cache.BalanceEntry{
			Address:  account.Address,
			Currency: name,
			Reserve:  new(big.Int).Set(amount),
		})
	}
	return &CurrencyBalancesResult{Balances: balances, AsOf: time.Now()}, nil
}

// RawTransaction returns the serialized hex of a transaction by id.
func (w *Wallet) RawTransaction(ctx context.Context, txid string) (string, error) {
	return w.chainClient.GetRawTransaction(ctx, txid)
}

// BlockHeight returns the current chain tip height.
func (w *Wallet) BlockHeight(ctx context.Context) (int64, error) {
	return w.chainClient.GetCurrentBlockHeight(ctx)
}

// History returns recent transactions for the active account, with
// details served from the confirmation-aware cache where possible.
func (w *Wallet) History(ctx context.Context, limit int) ([]chain.TxDetail, error) {
	session, err := w.activeSession()
	if err != nil {
		return nil, err
	}
	account, err := session.ActiveAccount()
	if err != nil {
		return nil, err
	}

	refs, err := w.chainClient.ListTransactions(ctx, account.Address)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}

	details := make([]chain.TxDetail, 0, len(refs))
	for _, ref := range refs {
		confirmed := ref.Height > 0
		if cached, ok := w.txCache.Get(account.Address, ref.TxID, confirmed); ok {
			details = append(details, *cached)
			continue
		}
		detail, err := w.chainClient.GetTransactionVerbose(ctx, ref.TxID)
		if err != nil {
			return nil, err
		}
		w.txCache.Set(account.Address, *detail)
		details = append(details, *detail)
	}
	return details, nil
}

// feeRate asks the estimator, which already falls back to a sane
// default when the backend has no estimate.
func (w *Wallet) feeRate(ctx context.Context) (int64, error) {
	return w.chainClient.EstimateFee(ctx, 2)
}

// prepareSpend gathers everything a builder needs. The derived key is
// returned for the caller to destroy.
func (w *Wallet) prepareSpend(ctx context.Context) (*keychain.DerivedKey, []chain.UTXO, int64, int64, error) {
	session, err := w.activeSession()
	if err != nil {
		return nil, nil, 0, 0, err
	}
	key, err := session.DeriveActiveKey()
	if err != nil {
		return nil, nil, 0, 0, err
	}

	utxos, err := w.chainClient.ListUnspent(ctx, key.Account.Address)
	if err != nil {
		key.Destroy()
		return nil, nil, 0, 0, err
	}
	rate, err := w.feeRate(ctx)
	if err != nil {
		key.Destroy()
		return nil, nil, 0, 0, err
	}
	height, err := w.chainClient.GetCurrentBlockHeight(ctx)
	if err != nil {
		key.Destroy()
		return nil, nil, 0, 0, err
	}
	return key, utxos, rate, height, nil
}

// FeeRate returns the current estimated fee rate per kilobyte.
func (w *Wallet) FeeRate(ctx context.Context) (int64, error) {
	return w.feeRate(ctx)
}

// SendResult reports a broadcast transaction.
type SendResult struct {
	TxID string
	Fee  int64
}

// SimulateResult previews a transfer that was built and signed but
// never broadcast.
type SimulateResult struct {
	TxID   string
	Fee    int64
	Change int64
	Size   int
}

// SimulateSend builds and signs a plain transfer without broadcasting
// it, reporting the fee and size the real send would pay.
func (w *Wallet) SimulateSend(ctx context.Context, recipient, amount string) (*SimulateResult, error) {
	value, err := chain.ParseNativeAmount(amount)
	if err != nil {
		return nil, err
	}

	key, utxos, rate, height, err := w.prepareSpend(ctx)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	built, err := txbuilder.BuildPlainSend(&txbuilder.PlainSendRequest{
		Params:        w.params,
		UTXOs:         utxos,
		Recipient:     recipient,
		Amount:        value,
		FeeRatePerKB:  rate,
		CurrentHeight: height,
		Sender:        key.Account.Address,
		PrivKey:       key.PrivKey.Bytes(),
		PubKey:        key.PubKey,
	})
	if err != nil {
		return nil, err
	}
	return &SimulateResult{
		TxID:   built.TxID,
		Fee:    built.Fee,
		Change: built.Change,
		Size:   len(built.Raw),
	}, nil
}

// Send builds, signs, and broadcasts a plain transfer of amount (a
// decimal string) to recipient.
func (w *Wallet) Send(ctx context.Context, recipient, amount string) (*SendResult, error) {
	value, err := chain.ParseNativeAmount(amount)
	if err != nil {
		return nil, err
	}

	key, utxos, rate, height, err := w.prepareSpend(ctx)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	built, err := txbuilder.BuildPlainSend(&txbuilder.PlainSendRequest{
		Params:        w.params,
		UTXOs:         utxos,
		Recipient:     recipient,
		Amount:        value,
		FeeRatePerKB:  rate,
		CurrentHeight: height,
		Sender:        key.Account.Address,
		PrivKey:       key.PrivKey.Bytes(),
		PubKey:        key.PubKey,
	})
	if err != nil {
		return nil, err
	}
	return w.broadcast(ctx, key.Account.Address, built)
}

// Convert builds and broadcasts a reserve conversion. via may be empty
// for a direct reserve-to-basket or basket-to-reserve conversion.
func (w *Wallet) Convert(ctx context.Context, source, dest, via, amount string) (*SendResult, error) {
	value, err := chain.ParseNativeAmount(amount)
	if err != nil {
		return nil, err
	}

	key, utxos, rate, height, err := w.prepareSpend(ctx)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	built, err := txbuilder.BuildConvert(&txbuilder.ConvertRequest{
		Params:         w.params,
		UTXOs:          utxos,
		SourceCurrency: source,
		DestCurrency:   dest,
		ViaCurrency:    via,
		Amount:         value,
		FeeRatePerKB:   rate,
		CurrentHeight:  height,
		Sender:         key.Account.Address,
		PrivKey:        key.PrivKey.Bytes(),
		PubKey:         key.PubKey,
	})
	if err != nil {
		return nil, err
	}
	return w.broadcast(ctx, key.Account.Address, built)
}

// SendCurrency builds and broadcasts a non-native asset transfer.
// UTXOs come from the explorer because asset balances live in output
// scripts, which electrum's listunspent does not always carry.
func (w *Wallet) SendCurrency(ctx context.Context, currency, recipient, amount string) (*SendResult, error) {
	value, err := chain.ParseAmount(amount, chain.Decimals)
	if err != nil {
		return nil, err
	}

	session, err := w.activeSession()
	if err != nil {
		return nil, err
	}
	key, err := session.DeriveActiveKey()
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	utxos, err := w.explorer.GetAddressUTXOs(ctx, key.Account.Address)
	if err != nil {
		return nil, err
	}
	rate, err := w.feeRate(ctx)
	if err != nil {
		return nil, err
	}
	height, err := w.chainClient.GetCurrentBlockHeight(ctx)
	if err != nil {
		return nil, err
	}

	built, err := txbuilder.BuildAssetSend(&txbuilder.AssetSendRequest{
		Params:        w.params,
		UTXOs:         utxos,
		Currency:      currency,
		Amount:        value,
		Recipient:     recipient,
		FeeRatePerKB:  rate,
		CurrentHeight: height,
		Sender:        key.Account.Address,
		PrivKey:       key.PrivKey.Bytes(),
		PubKey:        key.PubKey,
	})
	if err != nil {
		return nil, err
	}
	return w.broadcast(ctx, key.Account.Address, built)
}

func (w *Wallet) broadcast(ctx context.Context, address string, built *txbuilder.BuiltTx) (*SendResult, error) {
	txid, err := w.chainClient.Broadcast(ctx, built.Hex)
	if err != nil {
		return nil, err
	}
	// The spend changed the balance; drop stale cache entries.
	w.balances.Delete(address, "")
	return &SendResult{TxID: txid, Fee: built.Fee}, nil
}
