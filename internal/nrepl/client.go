// Package nrepl 实现一个 nREPL 协议客户端。
//
// 客户端维护一条到远端求值器的持久 TCP 连接，在其上复用多个逻辑
// 会话，将异步响应关联回产生它们的请求，并向调用方提供基于队列的
// 有序接口。
//
// 工作方式：
//
//  1. 与给定的 host 和 port 建立 socket 连接；
//  2. 启动一个发送协程，从发送队列取出操作并写入 socket；
//  3. 启动一个接收协程，从 socket 读取 bencode 值，按会话分发，
//     无人认领的响应进入通用接收队列。
//
// 调用 Halt 会停止两个后台协程并关闭连接。
package nrepl

import (
	"context"
	"net"
	"strconv"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/oconnor0/tutkain/internal/nrepl/bencode"
	"github.com/oconnor0/tutkain/internal/queue"
	"github.com/oconnor0/tutkain/pkg/log"
	"github.com/oconnor0/tutkain/pkg/metrics"
	"github.com/oconnor0/tutkain/pkg/util/conc"
	"github.com/oconnor0/tutkain/pkg/util/merr"
)

// 编译期断言：确保 Client 满足会话所需的最小能力。
var _ sender = (*Client)(nil)

// Client 拥有 socket 连接、两个无界 FIFO 队列和两个后台工作协程。
//
// 注意：响应处理器在接收协程上同步调用，处理器阻塞会直接拖慢该
// 连接上所有后续响应的分发。这是有意的取舍，换取严格的分发顺序。
type Client struct {
	log.Binder

	host string
	port int

	registry *SessionRegistry

	connMu sync.Mutex
	conn   net.Conn
	enc    *bencode.Encoder
	dec    *bencode.Decoder

	sendQueue *queue.Queue[Operation]
	recvQueue *queue.Queue[Response]

	stopped      *atomic.Bool
	startMu      sync.Mutex
	started      bool
	haltOnce     sync.Once
	sentinelOnce sync.Once

	// done 在接收协程完成清理后关闭。
	done chan struct{}
}

// NewClient 创建一个处于空闲状态的客户端。
// registry 供接收协程分发响应时查找会话，由调用方持有和共享。
func NewClient(host string, port int, registry *SessionRegistry) *Client {
	c := &Client{
		host:      host,
		port:      port,
		registry:  registry,
		sendQueue: queue.New[Operation]("send"),
		recvQueue: queue.New[Response]("recv"),
		stopped:   atomic.NewBool(false),
		done:      make(chan struct{}),
	}
	c.SetLogger(log.With(
		log.FieldComponent("nrepl.client"),
		zap.String("addr", c.Addr())))
	return c
}

// Addr 返回目标地址 host:port。
func (c *Client) Addr() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Connect 建立 TCP 连接并包装为带缓冲的双工字节流。
//
// 行为：
//   - 已连接时是无害的空操作；
//   - 任何拨号错误（拒绝、超时、解析失败）都是致命的，包装为
//     merr.ErrConnect 同步返回。本层不做重试，重试策略属于调用方。
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", c.Addr())
	if err != nil {
		return merr.WrapErrConnect(c.Addr(), err)
	}

	c.conn = conn
	c.enc = bencode.NewEncoder(conn)
	c.dec = bencode.NewDecoder(conn)

	c.Logger().Debug("socket connect",
		zap.String("host", c.host),
		zap.Int("port", c.port))
	return nil
}

// disconnect 尽力关闭连接的读写两个方向。
// 运行在失败路径上，任何系统级错误只记录日志，绝不向外抛出。
func (c *Client) disconnect() {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err != nil {
			c.Logger().Debug("socket shutdown", zap.Error(err))
		}
	}
	if err := conn.Close(); err != nil {
		c.Logger().Debug("socket disconnect", zap.Error(err))
		return
	}

	metrics.ClientDisconnects.Inc()
	c.Logger().Debug("socket disconnect")
}

// Go 幂等地建立连接并启动发送、接收两个后台协程，随即返回。
// 每个客户端只会有这两个协程，不会为会话或操作派生额外协程。
// 连接失败时不会记为已启动，调用方可以重试。
func (c *Client) Go(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	if c.started {
		return nil
	}

	if err := c.Connect(ctx); err != nil {
		return err
	}

	_ = conc.Go(func() (struct{}, error) {
		c.sendLoop()
		return struct{}{}, nil
	})
	_ = conc.Go(func() (struct{}, error) {
		c.recvLoop()
		return struct{}{}, nil
	})
	c.started = true
	return nil
}

// enqueue 将操作放入发送队列。连接已停止时返回 merr.ErrHalted。
func (c *Client) enqueue(op Operation) error {
	if c.stopped.Load() {
		return merr.WrapErrHalted()
	}
	if err := c.sendQueue.Put(op); err != nil {
		return merr.WrapErrHalted()
	}
	return nil
}

// output 将响应放入通用接收队列。
func (c *Client) output(resp Response) error {
	return c.recvQueue.Put(resp)
}

// Recv 阻塞读取通用接收队列中的下一条响应。
// 读到哨兵值（连接已结束）时返回 merr.ErrConnectionClosed，之后
// 不允许再发起任何操作。
func (c *Client) Recv() (Response, error) {
	resp, ok := c.recvQueue.Get()
	if !ok || resp == nil {
		return nil, merr.WrapErrConnectionClosed("recv")
	}
	return resp, nil
}

// CloneSession 在远端创建一个新会话。
//
// 行为：
//   - 发送一个不携带会话 id 的 clone 操作，绕过按会话分发；
//   - 阻塞读取通用接收队列中的一个值，取其 "new-session" 字段作为
//     新会话的 id。这是一次同步往返，本层不设超时，需要有界延迟的
//     调用方应在外层用 context 包裹。
//
// 连接已死时返回 merr.ErrConnectionClosed，而不是永久阻塞。
func (c *Client) CloneSession() (*Session, error) {
	if err := c.enqueue(Operation{"op": "clone"}); err != nil {
		return nil, err
	}

	resp, ok := c.recvQueue.Get()
	if !ok || resp == nil {
		return nil, merr.WrapErrConnectionClosed("clone")
	}

	id, found := resp.NewSession()
	if !found {
		return nil, merr.WrapErrResponseMissing("new-session")
	}

	c.Logger().Debug("session clone", log.FieldSession(id))
	return newSession(id, c), nil
}

// Halt 发起关闭协议。幂等，可从任意协程调用任意多次。
//
// 行为：
//  1. 入队一条显式的 close 操作，给远端确认关闭的机会；
//  2. 入队毒丸哨兵。FIFO 保证先前入队的操作先于哨兵落到线上；
//  3. 置位停止标志，令接收协程在下一次循环边界退出。
func (c *Client) Halt() {
	c.haltOnce.Do(func() {
		_ = c.sendQueue.Put(Operation{"op": "close"})
		_ = c.sendQueue.Put(nil)
		c.stopped.Store(true)
		c.Logger().Debug("halt")
	})
}

// Done 返回接收协程完成清理后关闭的通知通道。
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// sendLoop 是发送协程的主体，持续运行直到读到毒丸。
//
// 行为：
//   - 阻塞取出发送队列中的下一项并经 bencode 写入 socket；
//   - nil 哨兵使循环干净退出，先于哨兵入队的操作保证已经写出；
//   - 编码或写入错误对本协程是致命的：记录日志、计数，然后退出。
//     错误不回传给发起方（已知限制，保持原状并记录在案）。
func (c *Client) sendLoop() {
	for {
		item, ok := c.sendQueue.Get()
		if !ok || item == nil {
			break
		}

		c.Logger().Debug("socket send", zap.Any("item", map[string]any(item)))

		if err := c.enc.Encode(map[string]any(item)); err != nil {
			c.Logger().Error("send loop write failed", zap.Error(err))
			metrics.ClientSendErrors.Inc()
			break
		}
		metrics.ClientOpsSent.WithLabelValues(item.Op()).Inc()
	}

	c.Logger().Debug("send loop exit")
}

// recvLoop 是接收协程的主体，持续运行直到停止标志或致命错误。
//
// 退出时的清理顺序是契约的一部分：先向通用接收队列推入哨兵（仅
// 一次）并关闭队列，再断开连接。这样连接死亡后队列上的每个消费
// 者都会被唤醒：第一个读到哨兵，其余读到关闭标记，不会永久阻塞。
func (c *Client) recvLoop() {
	defer func() {
		c.sentinelOnce.Do(func() {
			_ = c.recvQueue.Put(nil)
			c.recvQueue.Close()
		})
		c.Logger().Debug("recv loop exit")
		c.disconnect()
		close(c.done)
	}()

	for !c.stopped.Load() {
		value, err := c.dec.Decode()
		if err != nil {
			// 停止之后的读错误是连接被拆除的正常结果。
			if !c.stopped.Load() {
				c.Logger().Error("recv loop read failed", zap.Error(err))
				metrics.ClientRecvErrors.Inc()
			}
			return
		}

		m, ok := value.(map[string]any)
		if !ok {
			c.Logger().Warn("recv loop: non-dict value", zap.Any("value", value))
			metrics.ClientRecvErrors.Inc()
			continue
		}
		resp := Response(m)

		c.Logger().Debug("socket recv", zap.Any("item", m))

		// 会话关闭握手的确认：不再分发，直接结束接收。
		// 按集合包含判断，允许额外的状态标记。
		if resp.HasStatus(StatusDone, StatusSessionClosed) {
			return
		}

		c.handle(resp)
	}
}

// handle 将一条响应分发给它所属的会话。
// 注册表中找不到会话时，响应进入通用接收队列——这是 clone 这类
// 不携带会话上下文的操作的响应路径。
func (c *Client) handle(resp Response) {
	if session, found := c.registry.GetByID(resp.Session()); found {
		metrics.ClientResponses.WithLabelValues("session").Inc()
		session.dispatch(resp)
		return
	}

	metrics.ClientResponses.WithLabelValues("generic").Inc()
	if err := c.output(resp); err != nil {
		c.Logger().Warn("drop response, output queue closed")
	}
}
