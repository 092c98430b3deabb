// Package port probes listener availability before the daemon binds
// its sockets.
//
// The serve command checks the HTTP and UDP listen addresses up front
// so a port held by another process produces one clear startup error
// instead of a partially started pipeline. A probe binds the address
// with net.Listen / net.ListenPacket and releases it immediately, which
// asks the OS authoritatively without parsing /proc/net/* or shelling
// out to tools that may need elevated permissions.
package port
