package replication

import "context"

// Middleware intercepts outgoing entity-actions/updates before they are
// handed to the channel layer, and incoming ones after they are decoded but
// before Sender/Receiver apply them — the same forward/reverse hook-chain
// idiom the RPC call path uses for request/response processing, generalized
// to replication's two message kinds.
type Middleware interface {
	ProcessAction(ctx context.Context, a EntityAction) (EntityAction, error)
	ProcessUpdate(ctx context.Context, u ComponentUpdate) (ComponentUpdate, error)
	Name() string
}

// Chain runs a sequence of Middleware on the outgoing path in order and on
// the incoming path in reverse, mirroring RPCElementChain's
// ProcessRequest/ProcessResponse symmetry.
type Chain struct {
	stages []Middleware
}

func NewChain(stages ...Middleware) *Chain {
	return &Chain{stages: stages}
}

// OutgoingAction and OutgoingUpdate run the stages in order before an
// action/update is serialized and sent.
func (c *Chain) OutgoingAction(ctx context.Context, a EntityAction) (EntityAction, error) {
	var err error
	for _, m := range c.stages {
		a, err = m.ProcessAction(ctx, a)
		if err != nil {
			return EntityAction{}, err
		}
	}
	return a, nil
}

func (c *Chain) OutgoingUpdate(ctx context.Context, u ComponentUpdate) (ComponentUpdate, error) {
	var err error
	for _, m := range c.stages {
		u, err = m.ProcessUpdate(ctx, u)
		if err != nil {
			return ComponentUpdate{}, err
		}
	}
	return u, nil
}

// IncomingAction and IncomingUpdate run after an action/update is
// deserialized, in reverse stage order, before it reaches Receiver.Apply*.
func (c *Chain) IncomingAction(ctx context.Context, a EntityAction) (EntityAction, error) {
	var err error
	for i := len(c.stages) - 1; i >= 0; i-- {
		a, err = c.stages[i].ProcessAction(ctx, a)
		if err != nil {
			return EntityAction{}, err
		}
	}
	return a, nil
}

func (c *Chain) IncomingUpdate(ctx context.Context, u ComponentUpdate) (ComponentUpdate, error) {
	var err error
	for i := len(c.stages) - 1; i >= 0; i-- {
		u, err = c.stages[i].ProcessUpdate(ctx, u)
		if err != nil {
			return ComponentUpdate{}, err
		}
	}
	return u, nil
}
