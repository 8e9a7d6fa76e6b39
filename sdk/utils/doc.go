// Package utils provee utilidades comunes para el SDK de qmtbridge.
//
// # Utilidades Incluidas
//
// - UUID: Generación de UUIDv7 ordenables por tiempo (ids de sesión)
// - Timestamp: Helpers para timestamps Unix en ms y latencias
// - JSON: Validación UTF-8 de cuerpos y serialización
//
// # Uso
//
//	id := utils.GenerateUUIDv7()
//
//	start := time.Now()
//	// ... request al motor ...
//	elapsed := utils.ElapsedMsSince(start)
//
//	if !utils.ValidateUTF8JSON(body) {
//	    // frame malformado
//	}
//
// # Integración
//
// Este paquete es usado por:
//   - sdk/ipc: serialización de frames
//   - sdk/grpc: latencias e ids de llamada
//   - bridge: sesiones y configuración
package utils
