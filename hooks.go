package accounts

import "context"

// Hooks are the typed lifecycle extension points.
//
// BeforeRegister may veto a registration by returning an error; nothing is
// persisted in that case. Registered and LoggedOut are notifications.
// AfterGetUser runs synchronously before a profile is returned and may
// attach derived data to it; the returned profile is what callers receive.
type Hooks interface {
	BeforeRegister(ctx context.Context, candidate *Account) error
	Registered(ctx context.Context, account *Account)
	LoggedOut(ctx context.Context, account *Account)
	AfterGetUser(ctx context.Context, account *Account, profile *Profile) (*Profile, error)
}

// HookFuncs adapts optional functions to Hooks. Nil fields are no-ops.
type HookFuncs struct {
	OnBeforeRegister func(ctx context.Context, candidate *Account) error
	OnRegistered     func(ctx context.Context, account *Account)
	OnLoggedOut      func(ctx context.Context, account *Account)
	OnAfterGetUser   func(ctx context.Context, account *Account, profile *Profile) (*Profile, error)
}

var _ Hooks = HookFuncs{}

// BeforeRegister implements Hooks.
func (h HookFuncs) BeforeRegister(ctx context.Context, candidate *Account) error {
	if h.OnBeforeRegister == nil {
		return nil
	}
	return h.OnBeforeRegister(ctx, candidate)
}

// Registered implements Hooks.
func (h HookFuncs) Registered(ctx context.Context, account *Account) {
	if h.OnRegistered != nil {
		h.OnRegistered(ctx, account)
	}
}

// LoggedOut implements Hooks.
func (h HookFuncs) LoggedOut(ctx context.Context, account *Account) {
	if h.OnLoggedOut != nil {
		h.OnLoggedOut(ctx, account)
	}
}

// AfterGetUser implements Hooks.
func (h HookFuncs) AfterGetUser(ctx context.Context, account *Account, profile *Profile) (*Profile, error) {
	if h.OnAfterGetUser == nil {
		return profile, nil
	}
	return h.OnAfterGetUser(ctx, account, profile)
}

// ChainHooks fans out to every hook in order. BeforeRegister stops at the
// first rejection and AfterGetUser threads the profile through each hook.
func ChainHooks(hooks ...Hooks) Hooks {
	out := make(chainHooks, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

type chainHooks []Hooks

func (c chainHooks) BeforeRegister(ctx context.Context, candidate *Account) error {
	for _, h := range c {
		if err := h.BeforeRegister(ctx, candidate); err != nil {
			return err
		}
	}
	return nil
}

func (c chainHooks) Registered(ctx context.Context, account *Account) {
	for _, h := range c {
		h.Registered(ctx, account)
	}
}

func (c chainHooks) LoggedOut(ctx context.Context, account *Account) {
	for _, h := range c {
		h.LoggedOut(ctx, account)
	}
}

func (c chainHooks) AfterGetUser(ctx context.Context, account *Account, profile *Profile) (*Profile, error) {
	for _, h := range c {
		next, err := h.AfterGetUser(ctx, account, profile)
		if err != nil {
			return nil, err
		}
		if next != nil {
			profile = next
		}
	}
	return profile, nil
}

func normalizeHooks(h Hooks) Hooks {
	if h == nil {
		return HookFuncs{}
	}
	return h
}
