package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/xKoRx/qmtbridge/bridge/internal"
	"github.com/xKoRx/qmtbridge/sdk/domain"
	"github.com/xKoRx/qmtbridge/sdk/telemetry"
)

const defaultGatewayAddress = "127.0.0.1:50071"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "run":
		runBridge(os.Args[2:])
	case "call":
		runCall(os.Args[2:])
	case "events":
		runEvents(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "simulate":
		runSimulate(os.Args[2:])
	case "journal":
		runJournal(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "comando desconocido: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	usage := `qmt-bridge - puente de transporte entre el terminal y el motor QMT

Uso:
  qmt-bridge run [--gateway 127.0.0.1:50071]
  qmt-bridge call --action <acción> [--params '{...}'] [--timeout 10s] [--gateway addr]
  qmt-bridge events [--events tick,order_update] [--gateway addr]
  qmt-bridge status [--gateway addr]
  qmt-bridge simulate [--request request_pipe] [--response response_pipe] [--tick 1s] [--legacy] [--mute a,b]
  qmt-bridge journal --path <archivo> [--limit 20] [--json]

Comandos:
  run        Conecta al motor y expone el gateway gRPC para el front-end.
  call       Envía un request al motor a través del gateway.
  events     Imprime los eventos push del motor recibidos por el gateway.
  status     Indica si el bridge tiene link con el motor (exit 3 si no).
  simulate   Levanta un motor simulado en los pipes indicados.
  journal    Muestra los últimos requests registrados.

Configuración de run: QMT_BRIDGE_CONFIG (YAML), ETCD_ENDPOINTS, QMT_REQUEST_PIPE, QMT_RESPONSE_PIPE.
`
	fmt.Fprintln(os.Stderr, usage)
}

func runBridge(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	gateway := fs.String("gateway", "", "Dirección del gateway gRPC (sobrescribe gateway/address)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config, err := internal.LoadConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error cargando configuración: %v\n", err)
		os.Exit(1)
	}
	if *gateway != "" {
		config.GatewayAddress = *gateway
	}

	tel, err := internal.InitTelemetry(ctx, config, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error inicializando telemetría: %v\n", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(tel)

	bridge, err := internal.New(config, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error inicializando bridge: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if stopErr := bridge.Stop(); stopErr != nil {
			fmt.Fprintf(os.Stderr, "error deteniendo bridge: %v\n", stopErr)
		}
	}()

	// Eco de los avisos del link en la consola, como el proceso principal
	bridge.Subscribe(domain.EventLog, func(_ context.Context, data json.RawMessage) {
		fmt.Fprintf(os.Stderr, "%s\n", eventText(data))
	})
	bridge.Subscribe(domain.EventError, func(_ context.Context, data json.RawMessage) {
		fmt.Fprintf(os.Stderr, "[连接错误] %s\n", eventText(data))
	})

	if config.GatewayAddress != "" {
		gw, err := internal.NewGateway(bridge, tel, config.GatewayAddress)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inicializando gateway: %v\n", err)
			os.Exit(1)
		}
		go func() {
			if err := gw.Serve(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "gateway detenido: %v\n", err)
			}
		}()
	}

	if err := bridge.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error iniciando bridge: %v\n", err)
		os.Exit(1)
	}

	<-ctx.Done()
}

func runCall(args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	gateway := fs.String("gateway", defaultGatewayAddress, "Dirección del gateway gRPC")
	action := fs.String("action", "", "Acción a invocar (query_assets, place_order, ...)")
	params := fs.String("params", "{}", "Params del request en JSON")
	timeout := fs.Duration("timeout", internal.DefaultRequestTimeout, "Deadline del request en el bridge")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	if *action == "" {
		fmt.Fprintln(os.Stderr, "--action es requerido")
		fs.Usage()
		os.Exit(1)
	}
	if !domain.IsKnownAction(*action) {
		fmt.Fprintf(os.Stderr, "advertencia: acción %q no es una acción conocida del motor\n", *action)
	}
	if !json.Valid([]byte(*params)) {
		fmt.Fprintln(os.Stderr, "--params no es JSON válido")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()

	tel := cliTelemetry(ctx)
	defer shutdownTelemetry(tel)

	client, err := internal.DialGateway(ctx, *gateway, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error conectando al gateway %s: %v\n", *gateway, err)
		os.Exit(1)
	}
	defer client.Close()

	resp, err := client.Invoke(ctx, *action, json.RawMessage(*params), *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error invocando %s: %v\n", *action, err)
		os.Exit(1)
	}

	printJSON(resp)
	if !resp.Success {
		os.Exit(2)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	gateway := fs.String("gateway", defaultGatewayAddress, "Dirección del gateway gRPC")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tel := cliTelemetry(ctx)
	defer shutdownTelemetry(tel)

	client, err := internal.DialGateway(ctx, *gateway, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error conectando al gateway %s: %v\n", *gateway, err)
		os.Exit(1)
	}
	defer client.Close()

	ok, err := client.Healthy(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error consultando estado: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		fmt.Println(internal.StateDisconnected.String())
		os.Exit(3)
	}
	fmt.Println(internal.StateConnected.String())
}

func runEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	gateway := fs.String("gateway", defaultGatewayAddress, "Dirección del gateway gRPC")
	events := fs.String("events", "", "Eventos separados por coma (vacío = todos)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tel := cliTelemetry(ctx)
	defer shutdownTelemetry(tel)

	dialCtx, dialCancel := context.WithTimeout(ctx, 5*time.Second)
	client, err := internal.DialGateway(dialCtx, *gateway, tel)
	dialCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error conectando al gateway %s: %v\n", *gateway, err)
		os.Exit(1)
	}
	defer client.Close()

	err = client.Events(ctx, func(ev internal.GatewayEvent) {
		fmt.Printf("%s push:%s %s\n", time.Now().Format("15:04:05.000"), ev.Name, string(ev.Data))
	}, splitList(*events)...)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "stream de eventos terminado: %v\n", err)
		os.Exit(1)
	}
}

func runSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	request := fs.String("request", "request_pipe", "Endpoint del canal de requests")
	response := fs.String("response", "response_pipe", "Endpoint del canal de respuestas")
	tick := fs.Duration("tick", time.Second, "Periodo de ticks de símbolos suscritos (0 = sin ticks)")
	legacy := fs.Bool("legacy", false, "Responder con reqId en vez de req_id")
	mute := fs.String("mute", "", "Acciones que nunca se responden, separadas por coma")
	account := fs.String("account", "SIM001", "Cuenta simulada")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	config := internal.DefaultSimulatorConfig(*request, *response)
	config.TickInterval = *tick
	config.LegacyReqID = *legacy
	config.MuteActions = splitList(*mute)
	config.AccountID = *account
	config.Seed = time.Now().UnixNano()

	tel, err := telemetry.New(ctx, "qmt-simulator", "development", telemetry.WithLogLevel("INFO"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error inicializando telemetría: %v\n", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(tel)

	sim, err := internal.NewSimulator(config, tel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error inicializando simulador: %v\n", err)
		os.Exit(1)
	}
	defer sim.Close()

	if err := sim.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "simulador detenido: %v\n", err)
		os.Exit(1)
	}
}

func runJournal(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	path := fs.String("path", "", "Archivo del journal (bridge/journal_path)")
	limit := fs.Int("limit", 20, "Cantidad de entradas (0 = todas)")
	jsonOutput := fs.Bool("json", false, "Imprimir en formato JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "error parseando flags: %v\n", err)
		os.Exit(1)
	}

	if *path == "" {
		fmt.Fprintln(os.Stderr, "--path es requerido")
		fs.Usage()
		os.Exit(1)
	}

	journal, err := internal.OpenJournal(*path, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error abriendo journal: %v\n", err)
		os.Exit(1)
	}
	defer journal.Close()

	entries, err := journal.Recent(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error leyendo journal: %v\n", err)
		os.Exit(1)
	}

	if *jsonOutput {
		printJSON(entries)
		return
	}

	if len(entries) == 0 {
		fmt.Println("Journal vacío")
		return
	}
	for _, e := range entries {
		result := "OK"
		if !e.Success {
			result = strings.TrimSpace(e.Code + " " + e.Error)
		}
		fmt.Printf("%s  #%-6d %-16s %6dms  %s\n",
			time.UnixMilli(e.FinishedAt).Format("2006-01-02 15:04:05"),
			e.ReqID, e.Action, e.LatencyMs, result)
	}
}

// cliTelemetry solo loggea warnings a stderr para no ensuciar la salida.
func cliTelemetry(ctx context.Context) *telemetry.Client {
	tel, err := telemetry.New(ctx, "qmt-bridge-cli", "cli",
		telemetry.WithLogWriter(os.Stderr),
		telemetry.WithLogLevel("WARN"),
		telemetry.WithMetricsDisabled(),
		telemetry.WithTracesDisabled(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error inicializando telemetría: %v\n", err)
		os.Exit(1)
	}
	return tel
}

func shutdownTelemetry(tel *telemetry.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error cerrando telemetría: %v\n", err)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error serializando resultado: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// eventText retorna el string de un payload JSON string, o el JSON crudo.
func eventText(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
