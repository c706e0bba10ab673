package server

import (
	"net"
	"time"

	"github.com/vertamedia/vertamedia-pbs/metrics"
)

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted connections, as net/http does in
// ListenAndServe.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (net.Conn, error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return nil, err
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}

type monitorableListener struct {
	net.Listener
	metrics metrics.MetricsEngine
}

type monitorableConnection struct {
	net.Conn
	metrics metrics.MetricsEngine
}

func (l *monitorableConnection) Close() error {
	err := l.Conn.Close()
	l.metrics.RecordConnectionClose(err == nil)
	return err
}

func (ln *monitorableListener) Accept() (net.Conn, error) {
	conn, err := ln.Listener.Accept()
	if err != nil {
		ln.metrics.RecordConnectionAccept(false)
		return nil, err
	}
	ln.metrics.RecordConnectionAccept(true)
	return &monitorableConnection{
		conn,
		ln.metrics,
	}, nil
}
