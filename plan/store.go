package plan

import "context"

type Store interface {
	Save(ctx context.Context, p *Plan) error
	Remove(ctx context.Context, name string) error
	List(ctx context.Context) ([]*Plan, error)
}
