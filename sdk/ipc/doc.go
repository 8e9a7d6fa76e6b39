// Package ipc provee abstracciones para comunicación inter-proceso con el
// motor de trading QMT.
//
// El terminal habla con el motor por dos canales de bytes independientes:
// uno de salida para requests y otro de entrada para respuestas y eventos.
// En Windows son Named Pipes (\\.\pipe\request_pipe y \\.\pipe\response_pipe);
// en hosts de desarrollo se usan Unix Domain Sockets con la misma interfaz.
//
// # Protocolo
//
// Cada mensaje viaja como un frame:
//
//	[u32 little-endian: largo del body][body: JSON UTF-8]
//
// Sin compresión ni checksum. Un frame nunca se parte entre dos llamadas a
// Encode, pero sí puede llegar partido (o varios juntos) en una lectura.
//
// # Uso Básico: Cliente
//
//	dialer := ipc.NewPipeDialer(ipc.DefaultPipeConfig("request_pipe"))
//	pipe, err := dialer.Dial(ctx, "request_pipe")
//	if err != nil {
//	    return err
//	}
//	defer pipe.Close()
//
//	writer := ipc.NewFrameWriter(pipe, 5*time.Second)
//	if err := writer.WriteMessage(map[string]interface{}{"action": "ping", "req_id": 1}); err != nil {
//	    return err
//	}
//
// # Uso Básico: Parser incremental
//
//	parser := ipc.NewParser(func(body json.RawMessage) {
//	    // un mensaje completo
//	}, ipc.WithMalformedHandler(func(body []byte, err error) {
//	    // frame descartado, el stream continúa
//	}))
//
//	reader := ipc.NewFrameReader(pipe, parser)
//	err := reader.Run() // bloquea hasta EOF/error
//
// # Thread Safety
//
// - FrameWriter serializa writes con sync.Mutex
// - Parser y FrameReader deben usarse desde una sola goroutine
//
// # Errores
//
// - ErrPipeClosed: el pipe fue cerrado
// - ErrFrameTooLarge: el header anuncia un body mayor a MaxFrameSize (stream irrecuperable)
// - ErrInvalidMessage: body no es UTF-8/JSON válido (se descarta solo ese frame)
package ipc
