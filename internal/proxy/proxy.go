// Package proxy relays UDP datagrams between a WireGuard peer and an
// obfuscation peer, applying the datagram transform in the right direction
// for its role. The client encodes traffic toward the server and decodes
// return traffic; the server is the mirror image, decoding client traffic
// before forwarding it to the real WireGuard endpoint.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"wgobfs/internal/conf"
	"wgobfs/internal/flog"
	"wgobfs/internal/obfs"
	"wgobfs/internal/pkg/buffer"
)

type Proxy struct {
	cfg  *conf.Conf
	obfs obfs.Obfuscator
	conn *net.UDPConn

	mu       sync.Mutex
	sessions map[string]*session

	wg sync.WaitGroup
}

func New(cfg *conf.Conf) (*Proxy, error) {
	ob, err := obfs.New(cfg.Obfs.Mode, []byte(cfg.Obfs.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create obfuscator: %w", err)
	}
	if w, ok := ob.(*obfs.WGObfs); ok {
		w.MinPad = byte(cfg.Obfs.Padding.MinPad)
		w.MaxPad = byte(cfg.Obfs.Padding.MaxPad)
		w.NarrowMaxPad = byte(cfg.Obfs.Padding.NarrowMaxPad)
		w.LargeCutoff = cfg.Obfs.Padding.LargeCutoff
		w.DropKeepalives = !cfg.Obfs.DisableKeepaliveDrop
	}

	return &Proxy{
		cfg:      cfg,
		obfs:     ob,
		sessions: make(map[string]*session),
	}, nil
}

// Start serves until ctx is canceled.
func (p *Proxy) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", p.cfg.Listen.Addr)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", p.cfg.Listen.Addr, err)
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	if err := conn.SetReadBuffer(p.cfg.Network.Sockbuf); err != nil {
		flog.Warnf("Failed to set read buffer to %d: %v", p.cfg.Network.Sockbuf, err)
	}
	if err := conn.SetWriteBuffer(p.cfg.Network.Sockbuf); err != nil {
		flog.Warnf("Failed to set write buffer to %d: %v", p.cfg.Network.Sockbuf, err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	flog.Infof("%s relay listening on %s, peer %s, obfs mode %s",
		p.cfg.Role, p.cfg.Listen.Addr, p.cfg.Server.Addr, p.obfs.Name())

	err = p.serve(ctx)
	p.closeSessions()
	p.wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (p *Proxy) serve(ctx context.Context) error {
	bufp := buffer.DPool.Get().(*[]byte)
	defer buffer.DPool.Put(bufp)
	buf := *bufp

	// Leave headroom so encode always has room for its padding prefix.
	readLimit := len(buf) - p.obfs.Overhead()

	for {
		n, addr, err := p.conn.ReadFromUDP(buf[:readLimit])
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read on listen socket: %w", err)
		}
		p.handleDownstream(buf, n, addr)
	}
}

// handleDownstream transforms one datagram from the listen socket and
// forwards it upstream. All failures are local to the packet.
func (p *Proxy) handleDownstream(buf []byte, n int, addr *net.UDPAddr) {
	res, err := p.outbound(buf, n)
	if err != nil {
		flog.Debugf("Dropping %d-byte datagram from %s: %v", n, addr, err)
		return
	}
	switch res.Verdict {
	case obfs.VerdictDrop:
		flog.Debugf("Suppressed keepalive from %s", addr)
		return
	case obfs.VerdictReject:
		flog.Debugf("Rejected %d-byte datagram from %s", n, addr)
		return
	}

	sess, err := p.session(addr)
	if err != nil {
		flog.Errorf("Failed to open upstream session for %s: %v", addr, err)
		return
	}
	if _, err := sess.conn.Write(buf[:res.Length]); err != nil {
		flog.Debugf("Upstream write for %s failed: %v", addr, err)
	}
}

func (p *Proxy) outbound(buf []byte, n int) (obfs.Result, error) {
	if p.cfg.Role == "client" {
		return p.obfs.Encode(buf, n)
	}
	return p.obfs.Decode(buf, n)
}

func (p *Proxy) inbound(buf []byte, n int) (obfs.Result, error) {
	if p.cfg.Role == "client" {
		return p.obfs.Decode(buf, n)
	}
	return p.obfs.Encode(buf, n)
}

// LocalAddr returns the bound listen address once Start is serving, nil
// before that. Useful when listening on an ephemeral port.
func (p *Proxy) LocalAddr() *net.UDPAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	return p.conn.LocalAddr().(*net.UDPAddr)
}

func (p *Proxy) idleTimeout() time.Duration {
	return time.Duration(p.cfg.Network.IdleTimeout) * time.Second
}
