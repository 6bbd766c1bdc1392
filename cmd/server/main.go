package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bazaar-backend/internal/api"
	"bazaar-backend/internal/auth"
	"bazaar-backend/internal/chain"
	"bazaar-backend/internal/config"
	"bazaar-backend/internal/realtime"
	"bazaar-backend/internal/repository"
	"bazaar-backend/internal/seed"
	"bazaar-backend/internal/service"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var log = logging.Logger("main")

func main() {
	app := &cli.App{
		Name:  "bazaar",
		Usage: "backend do marketplace Bazaar",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "arquivo .env carregado antes da configuração",
				Value: ".env",
			},
		},
		Before: func(cctx *cli.Context) error {
			// Em produção as variáveis podem vir direto do ambiente (Docker/K8s)
			if err := godotenv.Load(cctx.String("env-file")); err != nil {
				log.Warnw("não foi possível carregar o arquivo .env, usando variáveis de ambiente existentes", "error", err)
			}
			return nil
		},
		Commands: []*cli.Command{
			serveCmd,
			migrateCmd,
			seedCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "erro: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig carrega a configuração e aplica o nível de log
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if err := config.Load(&cfg); err != nil {
		return nil, fmt.Errorf("falha ao carregar configuração: %w", err)
	}
	if err := logging.SetLogLevel("*", cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("nível de log inválido %q: %w", cfg.LogLevel, err)
	}
	return &cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*repository.PostgresStore, error) {
	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := repository.NewPostgresStore(initCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}
	log.Info("conectado ao PostgreSQL")
	return store, nil
}

func migrate(ctx context.Context, store *repository.PostgresStore, dir string) error {
	applied, err := store.RunMigrations(ctx, dir)
	if err != nil {
		return fmt.Errorf("falha ao rodar migrações: %w", err)
	}
	log.Infow("migrações aplicadas", "applied", applied)
	return nil
}

var migrateCmd = &cli.Command{
	Name:  "migrate",
	Usage: "aplica as migrações pendentes",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cctx.Context, cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		return migrate(cctx.Context, store, cfg.MigrationsDir)
	},
}

var seedCmd = &cli.Command{
	Name:  "seed",
	Usage: "insere dados de exemplo",
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cctx.Context, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		users := service.NewUserService(store, cfg.UserCacheSize, cfg.UserCacheTTL, nil)
		res, err := seed.Run(cctx.Context, seed.Services{
			Users: users,
			Items: service.NewItemService(store, users),
			Convs: service.NewConversationService(store, nil),
		})
		if err != nil {
			return err
		}
		for _, u := range res.Users {
			fmt.Printf("%s\t%s\n", u.Username, u.Address)
		}
		return nil
	},
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "inicia a API HTTP e o confirmador de pagamentos",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "migrate",
			Usage: "aplica as migrações antes de iniciar",
			Value: true,
		},
	},
	Action: func(cctx *cli.Context) (err error) {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cctx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// Fecha tudo que foi aberto, acumulando os erros
		var closers []func() error
		defer func() {
			var merr *multierror.Error
			for i := len(closers) - 1; i >= 0; i-- {
				merr = multierror.Append(merr, closers[i]())
			}
			if cerr := merr.ErrorOrNil(); cerr != nil {
				err = multierror.Append(err, cerr).ErrorOrNil()
			}
		}()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		closers = append(closers, store.Close)

		if cctx.Bool("migrate") {
			if err := migrate(ctx, store, cfg.MigrationsDir); err != nil {
				return err
			}
		}

		chains := chain.DefaultRegistry()
		if cfg.ChainsFile != "" {
			if chains, err = chain.LoadRegistry(cfg.ChainsFile); err != nil {
				return err
			}
		}
		verifier, closeLedgers, err := chain.DialVerifier(ctx, chains)
		if err != nil {
			return fmt.Errorf("falha ao conectar aos ledgers: %w", err)
		}
		closers = append(closers, func() error { closeLedgers(); return nil })

		tokenService, err := auth.NewTokenService(cfg.JWTSecret)
		if err != nil {
			return fmt.Errorf("falha ao iniciar TokenService: %w", err)
		}

		// Eventos: hub local, ou via LISTEN/NOTIFY quando há várias instâncias
		hub := realtime.NewHub()
		var publisher realtime.Publisher = hub
		var bridge *realtime.PGBridge
		if cfg.UsePGBridge {
			bridge = realtime.NewPGBridge(store.Pool(), hub)
			publisher = bridge
		}

		var humanity service.HumanityVerifier
		if cfg.HumanityEnabled() {
			humanity = service.NewHTTPHumanityVerifier(cfg.HumanityVerifierURL, cfg.HumanityAppID, cfg.HumanityAction)
		}

		var s3Service *service.S3Service
		if cfg.UploadsEnabled() {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				return fmt.Errorf("falha ao carregar configuração AWS: %w", err)
			}
			s3Service = service.NewS3Service(s3.NewFromConfig(awsCfg), cfg.AWSBucketName, cfg.AWSRegion, cfg.ImageBaseURL)
		} else {
			log.Warn("AWS_BUCKET_NAME não definido, upload de imagens desativado")
		}

		users := service.NewUserService(store, cfg.UserCacheSize, cfg.UserCacheTTL, humanity)
		handler := api.NewHandler(api.Services{
			Users:       users,
			SignIn:      service.NewSignInService(users, tokenService),
			Items:       service.NewItemService(store, users),
			Convs:       service.NewConversationService(store, publisher),
			Offers:      service.NewOfferService(store, chains, publisher),
			Settlements: service.NewSettlementService(store, verifier, publisher),
			Feedback:    service.NewFeedbackService(store, publisher),
			S3:          s3Service,
			Tokens:      tokenService,
			Chains:      chains,
			Hub:         hub,
			ChannelAuth: realtime.NewAuthorizer(store),
			HealthCheck: func(ctx context.Context) error { return store.Pool().Ping(ctx) },
			CORSOrigins: cfg.CORSOrigins,
		})
		confirmer := service.NewConfirmer(store, verifier, publisher, cfg.ConfirmerInterval, cfg.SettlementReceiptTimeout)

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
			Handler:      handler.Routes(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}
		// Conexões WebSocket são sequestradas e o Shutdown não as fecha
		srv.RegisterOnShutdown(hub.Close)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Infow("servidor iniciado", "addr", fmt.Sprintf("http://localhost:%d/v1", cfg.ServerPort))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("erro ao iniciar servidor: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			return confirmer.Run(gctx)
		})
		if bridge != nil {
			g.Go(func() error {
				return bridge.Run(gctx)
			})
		}
		g.Go(func() error {
			<-gctx.Done()
			log.Info("recebido sinal de desligamento, encerrando servidor...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("erro no graceful shutdown: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		log.Info("servidor encerrado")
		return nil
	},
}
