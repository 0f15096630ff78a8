package application

import (
	"fmt"

	"admission-gateway/middleware/ratelimit/domain"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// EndpointRule é a configuração de um endpoint: nome da estratégia e string
// de parâmetros ("key=value,key=value").
type EndpointRule struct {
	Endpoint string
	Strategy string
	Params   string
}

// Registrar popula o Container no startup.
//
// Se a estratégia configurada não puder ser construída (nome desconhecido,
// parâmetros inválidos), o endpoint recebe a estratégia default: o gate nunca
// fica ausente para um endpoint configurado.
type Registrar struct {
	Container *Container
	Resolver  domain.StrategyResolver
	Logger    *zap.Logger
}

func (r Registrar) Register(namespace string, rule EndpointRule) error {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("namespace", namespace), zap.String("endpoint", rule.Endpoint))

	rl, err := r.Resolver.New(rule.Strategy, rule.Params)
	if err != nil {
		logger.Warn("failure to add the rate limiter strategy, using default",
			zap.String("strategy", rule.Strategy),
			zap.String("params", rule.Params),
			zap.Error(err),
		)
		rl, err = r.Resolver.Default()
		if err != nil {
			logger.Error("failure to add the default rate limiter strategy", zap.Error(err))
			return fmt.Errorf("register %s%s: %w", namespace, rule.Endpoint, err)
		}
	}

	if err := r.Container.Add(namespace, rule.Endpoint, rl); err != nil {
		return err
	}

	strategy := rule.Strategy
	if n, ok := rl.(domain.Named); ok {
		strategy = n.Name()
	}
	logger.Debug("rate limiter registered", zap.String("strategy", strategy))
	return nil
}

// RegisterAll registra todas as regras e devolve os erros combinados.
func (r Registrar) RegisterAll(namespace string, rules []EndpointRule) error {
	var err error
	for _, rule := range rules {
		err = multierr.Append(err, r.Register(namespace, rule))
	}
	return err
}
