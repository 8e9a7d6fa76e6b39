// Package grpc provee wrappers de cliente/servidor gRPC para el gateway del
// terminal.
//
// El gateway expone el bridge QMT a procesos front-end locales (la UI del
// terminal, scripts de operador). Este paquete no conoce el servicio: solo
// arma el grpc.Server/grpc.ClientConn con keepalive e interceptors de
// telemetría.
//
// # Servidor
//
//	config := grpc.DefaultServerConfig("127.0.0.1:50071")
//	config.UnaryInterceptors = []grpcgo.UnaryServerInterceptor{
//	    grpc.CallIDUnaryServerInterceptor(),
//	    grpc.LoggingUnaryServerInterceptor(telemetryClient),
//	}
//	server, err := grpc.NewServer(config)
//	if err != nil {
//	    return err
//	}
//	server.GRPCServer().RegisterService(&serviceDesc, impl)
//	go server.Serve(ctx)
//
// Para tests, NewServerWithListener acepta un bufconn.Listener.
//
// # Cliente
//
//	client, err := grpc.NewClient(ctx, grpc.DefaultClientConfig("127.0.0.1:50071"))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// # Call ID
//
// CallIDUnaryClientInterceptor agrega el header x-qmt-call-id (UUIDv7) y
// CallIDUnaryServerInterceptor lo mueve a los atributos de log del request,
// de modo que una llamada de la UI se puede seguir hasta el req_id del motor.
package grpc
