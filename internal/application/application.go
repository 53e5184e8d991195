package application

import "context"

// UseCase is one command of the service: the transport hands it a typed input and maps
// the returned error onto its own failure semantics.
type UseCase[In any, Out any] interface {
	Execute(ctx context.Context, in In) (Out, error)
}

// Func adapts a plain function to UseCase.
type Func[In any, Out any] func(ctx context.Context, in In) (Out, error)

func (f Func[In, Out]) Execute(ctx context.Context, in In) (Out, error) {
	return f(ctx, in)
}
