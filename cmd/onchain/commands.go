package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"gopkg.in/urfave/cli.v1"

	"walletbot/internal/application"
	"walletbot/internal/bootstrap"
	"walletbot/internal/domain"
	"walletbot/internal/infrastructure/kafka"
	"walletbot/internal/streaming"
	"walletbot/internal/wallet"
)

func commands(st *state) []cli.Command {
	return []cli.Command{
		{
			Name:   "chains",
			Usage:  "List registered chains",
			Action: st.run(false, listChains),
		},
		{
			Name:   "tokens",
			Usage:  "List registered tokens",
			Flags:  []cli.Flag{chainFlag},
			Action: st.run(false, listTokens),
		},
		{
			Name:  "balance",
			Usage: "Print a token balance",
			Flags: []cli.Flag{chainFlag, tokenFlag, accountFlag,
				cli.StringFlag{Name: "address", Usage: "holder address (defaults to the signing account)"},
			},
			Action: st.run(false, balance),
		},
		{
			Name:  "send",
			Usage: "Transfer native coin or an ERC-20 token",
			Flags: []cli.Flag{chainFlag, tokenFlag, amountFlag, accountFlag,
				cli.StringFlag{Name: "to", Usage: "recipient address"},
				cli.BoolFlag{Name: "wait-gas", Usage: "wait until gas is at or below GAS_PRICE_LIMIT_GWEI first"},
			},
			Action: st.run(true, send),
		},
		{
			Name:  "approve",
			Usage: "Approve a spender for an ERC-20 token",
			Flags: []cli.Flag{chainFlag, tokenFlag, amountFlag, accountFlag,
				cli.StringFlag{Name: "spender", Usage: "spender address or CONTRACTS name"},
			},
			Action: st.run(true, approve),
		},
		{
			Name:  "gas-wait",
			Usage: "Block until the gas price is at or below a limit",
			Flags: []cli.Flag{chainFlag,
				cli.Float64Flag{Name: "limit", Usage: "limit in gwei (defaults to GAS_PRICE_LIMIT_GWEI)"},
			},
			Action: st.run(false, gasWait),
		},
		{
			Name:  "withdraw",
			Usage: "Withdraw from the exchange to an on-chain address",
			Flags: []cli.Flag{chainFlag, amountFlag, accountFlag,
				cli.StringFlag{Name: "token, t", Usage: "exchange currency symbol"},
				cli.StringFlag{Name: "address", Usage: "destination (defaults to the signing account)"},
			},
			Action: st.run(true, withdraw),
		},
		{
			Name:      "derive",
			Usage:     "Derive an address from a mnemonic",
			ArgsUsage: "[index]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "mnemonic", Usage: "seed phrase (defaults to MNEMONIC)"},
				cli.UintFlag{Name: "index", Usage: "BIP-44 account index"},
				cli.BoolFlag{Name: "show-key", Usage: "also print the private key"},
			},
			Action: st.derive,
		},
		{
			Name:  "events",
			Usage: "Tail the notification topic of a chain",
			Flags: []cli.Flag{chainFlag,
				cli.StringFlag{Name: "group", Usage: "consumer group for committed offsets"},
			},
			Action: st.run(false, tailEvents),
		},
	}
}

func listChains(_ context.Context, _ *cli.Context, services *bootstrap.Services) error {
	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(out, "NAME\tCHAIN ID\tTX TYPE\tNATIVE\tRPC")
	for _, chain := range services.Chains.List() {
		fmt.Fprintf(out, "%s\t%d\t%d\t%s\t%s\n", chain.Name, chain.ChainID, chain.TxType, chain.NativeSymbol, chain.RPC)
	}
	return out.Flush()
}

func listTokens(_ context.Context, c *cli.Context, services *bootstrap.Services) error {
	tokens := services.Tokens.List()
	if name := c.String("chain"); name != "" {
		chain, err := services.Chain(name)
		if err != nil {
			return err
		}
		tokens = services.Tokens.ByChain(chain)
	}
	out := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(out, "SYMBOL\tCHAIN\tDECIMALS\tKIND\tADDRESS")
	for _, token := range tokens {
		fmt.Fprintf(out, "%s\t%s\t%d\t%s\t%s\n", token.Symbol, token.Chain.Name, token.Decimals, token.Kind, token.Address.Hex())
	}
	return out.Flush()
}

func balance(ctx context.Context, c *cli.Context, services *bootstrap.Services) error {
	var account *wallet.Account
	holder := c.String("address")
	if holder == "" {
		selected, err := signer(c, services)
		if err != nil {
			return err
		}
		account = selected
	}
	engine, err := engineFor(c, services, account)
	if err != nil {
		return err
	}
	token, err := services.Token(ctx, engine, c.String("token"))
	if err != nil {
		return err
	}
	amount, err := engine.Balance(ctx, token, holder)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", amount, token.Symbol)
	return nil
}

func send(ctx context.Context, c *cli.Context, services *bootstrap.Services) error {
	to := c.String("to")
	if to == "" {
		return errors.New("--to is required")
	}
	account, err := signer(c, services)
	if err != nil {
		return err
	}
	engine, err := engineFor(c, services, account)
	if err != nil {
		return err
	}
	token, err := services.Token(ctx, engine, c.String("token"))
	if err != nil {
		return err
	}
	amount, err := parseAmount(c, token.Decimals)
	if err != nil {
		return err
	}

	return services.WithLock(ctx, account.Address.Hex(), engine.Chain().ChainID, func(ctx context.Context) error {
		if c.Bool("wait-gas") {
			if err := engine.WaitForGasPrice(ctx, 0); err != nil {
				return err
			}
		}
		hash, err := engine.SendToken(ctx, amount, to, token)
		if hash != "" {
			printTx(engine.Chain(), hash)
		}
		return err
	})
}

func approve(ctx context.Context, c *cli.Context, services *bootstrap.Services) error {
	spender := c.String("spender")
	if spender == "" {
		return errors.New("--spender is required")
	}
	account, err := signer(c, services)
	if err != nil {
		return err
	}
	engine, err := engineFor(c, services, account)
	if err != nil {
		return err
	}
	if spender, err = services.Spender(engine.Chain(), spender); err != nil {
		return err
	}
	token, err := services.Token(ctx, engine, c.String("token"))
	if err != nil {
		return err
	}
	amount, err := parseAmount(c, token.Decimals)
	if err != nil {
		return err
	}

	return services.WithLock(ctx, account.Address.Hex(), engine.Chain().ChainID, func(ctx context.Context) error {
		hash, err := engine.Approve(ctx, token, amount, spender)
		if err != nil {
			return err
		}
		if hash == "" {
			fmt.Println("allowance already sufficient")
			return nil
		}
		printTx(engine.Chain(), hash)
		return nil
	})
}

func gasWait(ctx context.Context, c *cli.Context, services *bootstrap.Services) error {
	engine, err := engineFor(c, services, nil)
	if err != nil {
		return err
	}
	if err := engine.WaitForGasPrice(ctx, c.Float64("limit")); err != nil {
		return err
	}
	price, err := engine.GasPrice(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("gas price %.3f gwei on %s\n", price, engine.Chain().Name)
	return nil
}

func withdraw(ctx context.Context, c *cli.Context, services *bootstrap.Services) error {
	chain, err := services.Chain(c.String("chain"))
	if err != nil {
		return err
	}
	symbol := strings.ToUpper(strings.TrimSpace(c.String("token")))
	if symbol == "" {
		symbol = services.Tokens.Native(chain).Symbol
	}
	decimals := domain.DefaultDecimals
	if token, err := services.Tokens.BySymbol(symbol, chain); err == nil {
		decimals = token.Decimals
	}
	amount, err := parseAmount(c, decimals)
	if err != nil {
		return err
	}

	var defaultAddress string
	if c.String("address") == "" {
		account, err := signer(c, services)
		if err != nil {
			return err
		}
		defaultAddress = account.Address.Hex()
	}
	withdrawals, err := services.Withdrawals(defaultAddress)
	if err != nil {
		return err
	}
	result, err := withdrawals.Withdraw(ctx, symbol, amount, chain, c.String("address"))
	if err != nil {
		return err
	}
	fmt.Printf("withdrawal %s %s\n", result.ID, result.State)
	if result.TxHash != "" {
		printTx(chain, result.TxHash)
	}
	return nil
}

func (st *state) derive(c *cli.Context) error {
	phrase := c.String("mnemonic")
	if phrase == "" {
		phrase = st.cfg.Mnemonic
	}
	if phrase == "" {
		return errors.New("a mnemonic is required (--mnemonic or MNEMONIC)")
	}
	index := uint32(c.Uint("index"))
	account, err := wallet.FromMnemonic(phrase, index)
	if err != nil {
		return err
	}
	fmt.Printf("m/44'/60'/0'/0/%d %s\n", index, account.Address.Hex())
	if c.Bool("show-key") {
		key, err := wallet.PrivateKeyFromMnemonic(phrase, index)
		if err != nil {
			return err
		}
		fmt.Println(key)
	}
	return nil
}

func tailEvents(ctx context.Context, c *cli.Context, services *bootstrap.Services) error {
	cfg := services.Config
	chain, err := services.Chain(c.String("chain"))
	if err != nil {
		return err
	}
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:     cfg.KafkaBrokers,
		TopicPrefix: cfg.KafkaTopicPrefix,
		ChainID:     chain.ChainID,
		GroupID:     c.String("group"),
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	fmt.Fprintf(os.Stderr, "tailing %s\n", consumer.Topic())
	return consumer.Run(ctx, func(_ context.Context, msg streaming.Message) error {
		payload, err := streaming.Encode(msg)
		if err != nil {
			return err
		}
		_, err = fmt.Println(string(payload))
		return err
	})
}

func engineFor(c *cli.Context, services *bootstrap.Services, account *wallet.Account) (*application.Onchain, error) {
	chain, err := services.Chain(c.String("chain"))
	if err != nil {
		return nil, err
	}
	return services.Engine(chain, account)
}

func signer(c *cli.Context, services *bootstrap.Services) (*wallet.Account, error) {
	accounts, err := services.Accounts()
	if err != nil {
		return nil, err
	}
	index := c.Int("account")
	if index < 0 || index >= len(accounts) {
		return nil, fmt.Errorf("%w: account index %d of %d", domain.ErrInvalidArgument, index, len(accounts))
	}
	return accounts[index], nil
}

func parseAmount(c *cli.Context, decimals uint8) (domain.Amount, error) {
	raw := c.String("amount")
	if raw == "" {
		return domain.Amount{}, errors.New("--amount is required")
	}
	return domain.ParseAmount(raw, decimals)
}

func printTx(chain domain.Chain, hash string) {
	if url := chain.TxURL(hash); url != "" {
		fmt.Println(url)
		return
	}
	fmt.Println(hash)
}
