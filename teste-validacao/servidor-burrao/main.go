package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Upstream lento para validar o gateway na mão: com uma regra preemptible
// permit=1, duas chamadas simultâneas em /showTela?delay=5s devem gerar um 503.
type CLI struct {
	ListenAddr string        `name:"listen-addr" env:"LISTEN_ADDR" default:":8082"`
	Delay      time.Duration `name:"delay" env:"DELAY" default:"0s" help:"Atraso padrão de cada resposta."`
}

func main() {
	var cli CLI
	kong.Parse(&cli, kong.Name("servidor-burrao"))

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	r := chi.NewRouter()
	r.Get("/showTela", func(w http.ResponseWriter, r *http.Request) {
		delay := cli.Delay
		if v := r.URL.Query().Get("delay"); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				delay = d
			}
		}
		time.Sleep(delay)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso! (atraso %s)</p>", delay)
		logger.Info("alguém acessou /showTela", zap.Duration("delay", delay), zap.String("remote", r.RemoteAddr))
	})
	r.Get("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(chi.URLParam(r, "code"))
		if err != nil || code < 100 || code > 599 {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
	})

	logger.Info("servidor rodando", zap.String("addr", cli.ListenAddr))
	srv := &http.Server{Addr: cli.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("erro ao subir o servidor", zap.Error(err))
	}
}
