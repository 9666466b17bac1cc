package user

import "context"

type Store interface {
	Save(ctx context.Context, u *User) error
	Remove(ctx context.Context, key Key) error
	List(ctx context.Context) ([]*User, error)
}
