package main

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rwaswap/rwaswap-core-go/ledger"
	"github.com/rwaswap/rwaswap-core-go/pool"
	"github.com/rwaswap/rwaswap-core-go/pool/calculator"
	"github.com/rwaswap/rwaswap-core-go/registry"
	"github.com/rwaswap/rwaswap-core-go/registry/store"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	demoDecimals = 18
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// app wires a live in-process deployment: an asset ledger, the pool system,
// and a signed release registry backed by the in-memory store.
type app struct {
	logger *slog.Logger

	ledger *ledger.Ledger
	system *pool.System
	reg    *registry.Registry

	// Demo signer keys; in production these live in external signer tooling.
	keys []*ecdsa.PrivateKey

	tokens  map[string]common.Address
	symbols map[common.Address]string
	trader  common.Address
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. BUILD THE DEPLOYMENT ---
	a, err := newApp(rootLogger, prometheus.DefaultRegisterer)
	if err != nil {
		rootLogger.Error("Failed to build deployment", "error", err)
		closeApp()
	}
	if err := a.seed(ctx); err != nil {
		rootLogger.Error("Failed to seed demo state", "error", err)
		closeApp()
	}

	// --- 3. START CONSOLE ---
	fmt.Println(Green + "Starting RWA Swap Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	a.runConsole(ctx)
}

func newApp(logger *slog.Logger, registerer prometheus.Registerer) (*app, error) {
	l := ledger.New()

	system, err := pool.NewSystem(pool.SystemConfig{
		Ledger:     l,
		Logger:     logger.With("component", "pool-system"),
		FeeBps:     30,
		Registerer: registerer,
	})
	if err != nil {
		return nil, fmt.Errorf("pool system: %w", err)
	}

	keys := make([]*ecdsa.PrivateKey, 3)
	signers := make([]common.Address, 3)
	for i := range keys {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate signer key: %w", err)
		}
		keys[i] = key
		signers[i] = crypto.PubkeyToAddress(key.PublicKey)
	}

	reg, err := registry.New(registry.Config{
		ChainID:    1,
		Address:    common.HexToAddress("0x000000000000000000000000000000000000be57"),
		Signers:    signers,
		Threshold:  2,
		Logger:     logger.With("component", "registry"),
		Store:      store.NewMemory(),
		Registerer: registerer,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	return &app{
		logger:  logger,
		ledger:  l,
		system:  system,
		reg:     reg,
		keys:    keys,
		tokens:  make(map[string]common.Address),
		symbols: make(map[common.Address]string),
		trader:  common.HexToAddress("0x0000000000000000000000000000000000007ade"),
	}, nil
}

// seed funds the trader, creates demo pools with liquidity, and publishes an
// initial release so every console command has something to show.
func (a *app) seed(ctx context.Context) error {
	demo := []struct {
		symbol string
		addr   common.Address
	}{
		{"tGOLD", common.HexToAddress("0x0000000000000000000000000000000000000001")},
		{"tUSD", common.HexToAddress("0x0000000000000000000000000000000000000002")},
		{"tBOND", common.HexToAddress("0x0000000000000000000000000000000000000003")},
	}
	for _, d := range demo {
		a.tokens[d.symbol] = d.addr
		a.symbols[d.addr] = d.symbol
	}

	million := toRaw(big.NewFloat(1_000_000))
	for _, d := range demo {
		if err := a.ledger.Mint(d.addr, a.trader, million); err != nil {
			return err
		}
	}

	pairs := []struct {
		a, b             string
		amountA, amountB *big.Float
	}{
		{"tGOLD", "tUSD", big.NewFloat(1_000), big.NewFloat(3_000_000)},
		{"tBOND", "tUSD", big.NewFloat(50_000), big.NewFloat(5_000_000)},
	}
	for _, pair := range pairs {
		p, err := a.system.CreatePool(a.tokens[pair.a], a.tokens[pair.b])
		if err != nil {
			return err
		}
		if err := a.ledger.Mint(a.tokens[pair.a], p.Address(), toRaw(pair.amountA)); err != nil {
			return err
		}
		if err := a.ledger.Mint(a.tokens[pair.b], p.Address(), toRaw(pair.amountB)); err != nil {
			return err
		}
		if _, err := p.Mint(a.trader); err != nil {
			return err
		}
	}

	// One published release so the registry menu is not empty.
	return a.signedPublish(ctx, "edge-gateway", "1.0.0", crypto.Keccak256Hash([]byte("edge-gateway 1.0.0 binary")))
}

// --- CONSOLE LOOP ---

func (a *app) runConsole(ctx context.Context) {
	reader := bufio.NewReader(os.Stdin)

	for {
		if ctx.Err() != nil {
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			return
		}

		a.handleCommand(ctx, strings.TrimSpace(input), reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "RWA SWAP CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Pools Overview\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Quote      %s(marginal price + exact output)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s3.%s Swap\n", Cyan, Reset)
	fmt.Printf(" %s4.%s Add Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s5.%s Remove Liquidity\n", Cyan, Reset)
	fmt.Printf(" %s6.%s Balances\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s7.%s Releases   %s(per component)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s8.%s Publish Release\n", Cyan, Reset)
	fmt.Printf(" %s9.%s Revoke Release\n", Cyan, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func (a *app) handleCommand(ctx context.Context, input string, reader *bufio.Reader) {
	switch input {
	case "1":
		a.printPools()
	case "2":
		a.quote(reader)
	case "3":
		a.swap(reader)
	case "4":
		a.addLiquidity(reader)
	case "5":
		a.removeLiquidity(reader)
	case "6":
		a.printBalances()
	case "7":
		a.printReleases(reader)
	case "8":
		a.publishRelease(ctx, reader)
	case "9":
		a.revokeRelease(ctx, reader)
	case "q":
		fmt.Println(Yellow + "Exiting..." + Reset)
		os.Exit(0)
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- POOL COMMANDS ---

func (a *app) printPools() {
	header("POOLS")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PAIR\tRESERVE0\tRESERVE1\tFEE\tTOTAL SHARES\t")
	fmt.Fprintln(w, "----\t--------\t--------\t---\t------------\t")

	for _, p := range a.system.Pools() {
		r := p.GetReserves()
		fmt.Fprintf(w, "%s/%s\t%s\t%s\t%d bps\t%s\t\n",
			a.symbols[p.Token0()], a.symbols[p.Token1()],
			toHuman(r.Reserve0), toHuman(r.Reserve1),
			p.FeeBps(), toHuman(p.TotalShares()),
		)
	}
	w.Flush()
}

func (a *app) quote(reader *bufio.Reader) {
	p, tokenIn, tokenOut, ok := a.readPair(reader)
	if !ok {
		return
	}

	fmt.Print(Bold + "Amount in: " + Reset)
	amountIn, ok := readAmount(reader)
	if !ok {
		return
	}

	snap := p.Snapshot()
	amountOut, err := calculator.GetAmountOut(amountIn.ToBig(), tokenIn, tokenOut, snap)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	rate, err := calculator.GetExchangeRate(tokenIn, tokenOut, demoDecimals, snap)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	header("QUOTE")
	fmt.Printf("  %s%-16s%s %s %s\n", Gray, "Exact output:", Reset, toHumanBig(amountOut), a.symbols[tokenOut])
	fmt.Printf("  %s%-16s%s %s %s per %s\n", Gray, "Marginal rate:", Reset, toHumanBig(rate), a.symbols[tokenOut], a.symbols[tokenIn])
}

func (a *app) swap(reader *bufio.Reader) {
	p, tokenIn, tokenOut, ok := a.readPair(reader)
	if !ok {
		return
	}

	fmt.Print(Bold + "Amount in: " + Reset)
	amountIn, ok := readAmount(reader)
	if !ok {
		return
	}

	out, err := calculator.GetAmountOut(amountIn.ToBig(), tokenIn, tokenOut, p.Snapshot())
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	amountOut, overflow := uint256.FromBig(out)
	if overflow {
		fmt.Println(Red + "[ERROR] quoted output exceeds 256 bits" + Reset)
		return
	}

	// Pay first, then ask for the quoted output.
	if err := a.ledger.Transfer(tokenIn, a.trader, p.Address(), amountIn); err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	amount0Out, amount1Out := new(uint256.Int), amountOut
	if tokenOut == p.Token0() {
		amount0Out, amount1Out = amountOut, new(uint256.Int)
	}
	if err := p.Swap(amount0Out, amount1Out, a.trader, nil, nil); err != nil {
		fmt.Printf(Red+"[ERROR] swap rejected: %v%s\n", err, Reset)
		return
	}

	fmt.Printf("\n%sSwapped%s %s %s %s->%s %s %s\n",
		Green, Reset,
		toHuman(amountIn), a.symbols[tokenIn],
		Gray, Reset,
		toHuman(amountOut), a.symbols[tokenOut],
	)
}

func (a *app) addLiquidity(reader *bufio.Reader) {
	p, token0, _, ok := a.readPair(reader)
	if !ok {
		return
	}
	if token0 != p.Token0() {
		fmt.Printf(Gray+"Depositing in canonical order %s/%s.%s\n", a.symbols[p.Token0()], a.symbols[p.Token1()], Reset)
	}

	fmt.Printf(Bold+"Amount of %s: "+Reset, a.symbols[p.Token0()])
	amount0, ok := readAmount(reader)
	if !ok {
		return
	}
	fmt.Printf(Bold+"Amount of %s: "+Reset, a.symbols[p.Token1()])
	amount1, ok := readAmount(reader)
	if !ok {
		return
	}

	if err := a.ledger.Transfer(p.Token0(), a.trader, p.Address(), amount0); err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	if err := a.ledger.Transfer(p.Token1(), a.trader, p.Address(), amount1); err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	minted, err := p.Mint(a.trader)
	if err != nil {
		fmt.Printf(Red+"[ERROR] mint rejected: %v%s\n", err, Reset)
		return
	}
	fmt.Printf("\n%sMinted%s %s pool shares\n", Green, Reset, toHuman(minted))
}

func (a *app) removeLiquidity(reader *bufio.Reader) {
	p, _, _, ok := a.readPair(reader)
	if !ok {
		return
	}

	held := p.SharesOf(a.trader)
	fmt.Printf("%sShares held: %s%s\n", Gray, toHuman(held), Reset)
	fmt.Print(Bold + "Shares to burn: " + Reset)
	shares, ok := readAmount(reader)
	if !ok {
		return
	}

	if err := p.TransferShares(a.trader, p.Address(), shares); err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	amount0, amount1, err := p.Burn(a.trader)
	if err != nil {
		fmt.Printf(Red+"[ERROR] burn rejected: %v%s\n", err, Reset)
		return
	}

	fmt.Printf("\n%sBurned%s %s shares %s->%s %s %s + %s %s\n",
		Green, Reset, toHuman(shares),
		Gray, Reset,
		toHuman(amount0), a.symbols[p.Token0()],
		toHuman(amount1), a.symbols[p.Token1()],
	)
}

func (a *app) printBalances() {
	header("TRADER BALANCES")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tBALANCE\t")
	fmt.Fprintln(w, "-----\t-------\t")
	for symbol, addr := range a.tokens {
		balance, err := a.ledger.BalanceOf(addr, a.trader)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t\n", symbol, toHuman(balance))
	}
	w.Flush()

	fmt.Println("")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "POOL\tSHARES\t")
	fmt.Fprintln(w, "----\t------\t")
	for _, p := range a.system.Pools() {
		fmt.Fprintf(w, "%s/%s\t%s\t\n", a.symbols[p.Token0()], a.symbols[p.Token1()], toHuman(p.SharesOf(a.trader)))
	}
	w.Flush()
}

// --- REGISTRY COMMANDS ---

func (a *app) printReleases(reader *bufio.Reader) {
	fmt.Print(Bold + "Component: " + Reset)
	component, ok := readLine(reader)
	if !ok {
		return
	}

	history := a.reg.VersionHistory(component)
	if len(history) == 0 {
		fmt.Println(Yellow + "[INFO] No releases for this component." + Reset)
		return
	}

	latest, err := a.reg.GetLatestRelease(component)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	header(strings.ToUpper(component + " releases"))
	fmt.Printf("  %s%-16s%s %s\n", Gray, "Latest:", Reset, latest.Version)
	if minVersion := a.reg.GetMinimumVersion(component); minVersion != "" {
		fmt.Printf("  %s%-16s%s %s\n", Gray, "Minimum:", Reset, minVersion)
	}
	fmt.Println("")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "VERSION\tBINARY HASH\tSTATUS\t")
	fmt.Fprintln(w, "-------\t-----------\t------\t")
	for _, version := range history {
		release, err := a.reg.GetRelease(component, version)
		if err != nil {
			continue
		}
		status := Green + "OK" + Reset
		if release.Revoked {
			status = Red + "REVOKED: " + release.RevokeReason + Reset
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", version, release.BinaryHash.Hex()[:18]+"...", status)
	}
	w.Flush()
}

func (a *app) publishRelease(ctx context.Context, reader *bufio.Reader) {
	fmt.Print(Bold + "Component: " + Reset)
	component, ok := readLine(reader)
	if !ok {
		return
	}
	fmt.Print(Bold + "Version: " + Reset)
	version, ok := readLine(reader)
	if !ok {
		return
	}

	binaryHash := crypto.Keccak256Hash([]byte(component + " " + version + " binary"))
	if err := a.signedPublish(ctx, component, version, binaryHash); err != nil {
		fmt.Printf(Red+"[ERROR] publish rejected: %v%s\n", err, Reset)
		return
	}
	fmt.Printf("\n%sPublished%s %s@%s (nonce now %d)\n", Green, Reset, component, version, a.reg.GetOperationNonce())
}

func (a *app) revokeRelease(ctx context.Context, reader *bufio.Reader) {
	fmt.Print(Bold + "Component: " + Reset)
	component, ok := readLine(reader)
	if !ok {
		return
	}
	fmt.Print(Bold + "Version: " + Reset)
	version, ok := readLine(reader)
	if !ok {
		return
	}
	fmt.Print(Bold + "Reason: " + Reset)
	reason, _ := readLine(reader)

	nonce := a.reg.GetOperationNonce()
	digest := a.reg.ComputeRevokeHash(component, version, reason, nonce)
	sigs, err := a.sign(digest, 2)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	revoker := crypto.PubkeyToAddress(a.keys[0].PublicKey)
	if err := a.reg.RevokeRelease(ctx, revoker, component, version, reason, nonce, sigs); err != nil {
		fmt.Printf(Red+"[ERROR] revoke rejected: %v%s\n", err, Reset)
		return
	}
	fmt.Printf("\n%sRevoked%s %s@%s\n", Yellow, Reset, component, version)
}

func (a *app) signedPublish(ctx context.Context, component, version string, binaryHash common.Hash) error {
	nonce := a.reg.GetOperationNonce()
	digest := a.reg.ComputePublishHash(component, version, binaryHash, "", nonce)
	sigs, err := a.sign(digest, 2)
	if err != nil {
		return err
	}
	publisher := crypto.PubkeyToAddress(a.keys[0].PublicKey)
	return a.reg.PublishRelease(ctx, publisher, component, version, binaryHash, "", "", nonce, sigs)
}

func (a *app) sign(digest common.Hash, count int) ([][]byte, error) {
	sigs := make([][]byte, 0, count)
	for _, key := range a.keys[:count] {
		sig, err := crypto.Sign(digest.Bytes(), key)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

// --- HELPERS ---

func (a *app) readPair(reader *bufio.Reader) (*pool.Pool, common.Address, common.Address, bool) {
	fmt.Printf("%sTokens: %s%s\n", Gray, strings.Join(a.tokenSymbols(), ", "), Reset)

	fmt.Print(Bold + "Token in: " + Reset)
	tokenIn, ok := a.readToken(reader)
	if !ok {
		return nil, common.Address{}, common.Address{}, false
	}
	fmt.Print(Bold + "Token out: " + Reset)
	tokenOut, ok := a.readToken(reader)
	if !ok {
		return nil, common.Address{}, common.Address{}, false
	}

	p, err := a.system.GetPool(tokenIn, tokenOut)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return nil, common.Address{}, common.Address{}, false
	}
	return p, tokenIn, tokenOut, true
}

func (a *app) readToken(reader *bufio.Reader) (common.Address, bool) {
	symbol, ok := readLine(reader)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := a.tokens[symbol]
	if !ok {
		fmt.Printf(Red+"[ERROR] Unknown token %q%s\n", symbol, Reset)
		return common.Address{}, false
	}
	return addr, true
}

func (a *app) tokenSymbols() []string {
	symbols := make([]string, 0, len(a.tokens))
	for symbol := range a.tokens {
		symbols = append(symbols, symbol)
	}
	return symbols
}

func readLine(reader *bufio.Reader) (string, bool) {
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", false
	}
	input = strings.TrimSpace(input)
	return input, input != ""
}

func readAmount(reader *bufio.Reader) (*uint256.Int, bool) {
	input, ok := readLine(reader)
	if !ok {
		return nil, false
	}
	amountFloat, ok := new(big.Float).SetString(input)
	if !ok || amountFloat.Sign() <= 0 {
		fmt.Println(Red + "Invalid amount format." + Reset)
		return nil, false
	}
	raw := toRaw(amountFloat)
	if raw == nil {
		fmt.Println(Red + "Amount out of range." + Reset)
		return nil, false
	}
	return raw, true
}

// toRaw scales a human amount by 10^18 and converts to uint256.
func toRaw(amount *big.Float) *uint256.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(demoDecimals), nil)
	scaled := new(big.Float).Mul(amount, new(big.Float).SetInt(scale))
	rawInt, _ := scaled.Int(nil)
	raw, overflow := uint256.FromBig(rawInt)
	if overflow {
		return nil
	}
	return raw
}

func toHuman(amount *uint256.Int) string {
	return toHumanBig(amount.ToBig())
}

// toHumanBig renders a raw 18-decimal amount with 4 fractional digits.
func toHumanBig(amount *big.Int) string {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(demoDecimals), nil)
	human := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetInt(scale))
	return human.Text('f', 4)
}
