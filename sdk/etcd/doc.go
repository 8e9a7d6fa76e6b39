// Package etcd proporciona un cliente de configuración sobre etcd.
//
// Estructura de claves:
// El cliente sigue el patrón de ruta `/APP/ENV/VAR_KEY` donde:
//   - `APP`: Nombre de la aplicación (qmt-bridge)
//   - `ENV`: Entorno (development, testing, production)
//   - `VAR_KEY`: Clave de la variable (ej. pipes/request)
//
// En el bridge etcd es opcional: solo se consulta si ETCD_ENDPOINTS está
// definido, y sus valores pisan los del archivo YAML.
//
// Ejemplo básico de uso:
//
//	client, err := etcd.New(
//		etcd.WithApp("qmt-bridge"),
//		etcd.WithEnv("production"),
//	)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	pipe, err := client.GetVarWithDefault(ctx, "pipes/request", "request_pipe")
//	delay, err := client.GetVarMillisWithDefault(ctx, "bridge/reconnect_delay_ms", 3*time.Second)
//
// Los *WithDefault solo aplican el default cuando la clave no existe; errores
// del backend o valores mal formados se retornan.
package etcd
