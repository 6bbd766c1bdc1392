package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config armazena a configuração da aplicação
type Config struct {
	ServerPort  int    `envconfig:"SERVER_PORT" default:"8080"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Imagens dos anúncios (opcional: sem bucket o upload fica desativado)
	AWSBucketName string `envconfig:"AWS_BUCKET_NAME"`
	AWSRegion     string `envconfig:"AWS_REGION" default:"us-east-1"`
	ImageBaseURL  string `envconfig:"IMAGE_BASE_URL"`

	CORSOrigins   []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	MigrationsDir string   `envconfig:"MIGRATIONS_DIR" default:"./migrations"`

	// Arquivo TOML com as redes aceitas; vazio usa as redes de teste padrão
	ChainsFile        string        `envconfig:"CHAINS_FILE"`
	ConfirmerInterval time.Duration `envconfig:"CONFIRMER_INTERVAL" default:"15s"`
	// Pagamento sem recibo depois deste prazo tem a referência apagada
	SettlementReceiptTimeout time.Duration `envconfig:"SETTLEMENT_RECEIPT_TIMEOUT" default:"24h"`

	HumanityVerifierURL string `envconfig:"HUMANITY_VERIFIER_URL"`
	HumanityAppID       string `envconfig:"HUMANITY_APP_ID"`
	HumanityAction      string `envconfig:"HUMANITY_ACTION" default:"verify-seller"`

	UserCacheSize int           `envconfig:"USER_CACHE_SIZE" default:"4096"`
	UserCacheTTL  time.Duration `envconfig:"USER_CACHE_TTL" default:"5m"`

	// Entrega de eventos entre instâncias via LISTEN/NOTIFY
	UsePGBridge bool `envconfig:"USE_PG_BRIDGE" default:"false"`
}

// Load carrega a configuração das variáveis de ambiente
func Load(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return err
	}
	for i, origin := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(origin)
	}
	return nil
}

// UploadsEnabled informa se o bucket de imagens foi configurado
func (c *Config) UploadsEnabled() bool {
	return c.AWSBucketName != ""
}

// HumanityEnabled informa se o verificador de humanidade foi configurado
func (c *Config) HumanityEnabled() bool {
	return c.HumanityVerifierURL != "" && c.HumanityAppID != ""
}
