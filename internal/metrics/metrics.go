package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bazaar"

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Mensagens gravadas em conversas.",
	})

	OffersProposed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_proposed_total",
		Help:      "Ofertas propostas.",
	})

	OffersSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_superseded_total",
		Help:      "Ofertas pendentes removidas por uma proposta mais nova.",
	})

	OffersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offers_accepted_total",
		Help:      "Ofertas aceitas pelo vendedor.",
	})

	// SettlementsRecorded por status inicial (UNCONFIRMED, CONFIRMED)
	SettlementsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_recorded_total",
		Help:      "Pagamentos registrados.",
	}, []string{"status"})

	SettlementsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlements_rejected_total",
		Help:      "Pagamentos recusados pela inspeção do ledger.",
	})

	// SettlementChecks por veredito do confirmador (pending, confirmed, failed, error)
	SettlementChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_checks_total",
		Help:      "Consultas do confirmador ao ledger.",
	}, []string{"verdict"})

	FeedbackCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "feedback_created_total",
		Help:      "Avaliações registradas.",
	})

	RealtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_total",
		Help:      "Eventos publicados no canal de tempo real.",
	}, []string{"event"})

	RealtimePublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_publish_errors_total",
		Help:      "Falhas ao publicar eventos de tempo real.",
	})

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connections",
		Help:      "Conexões WebSocket abertas.",
	})

	UserCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "user_cache_lookups_total",
		Help:      "Consultas ao cache de usuários por resultado (hit, miss).",
	}, []string{"result"})
)
