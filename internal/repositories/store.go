package repositories

import "github.com/jmoiron/sqlx"

// PostgresStore wires the sqlx repositories onto one connection pool.
type PostgresStore struct {
	users    *UserRepo
	chats    *ChatRepo
	messages *MessageRepo
}

// NewPostgresStore constructs a Store backed by db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		users:    NewUserRepo(db),
		chats:    NewChatRepo(db),
		messages: NewMessageRepo(db),
	}
}

func (s *PostgresStore) Users() UserRepository       { return s.users }
func (s *PostgresStore) Chats() ChatRepository       { return s.chats }
func (s *PostgresStore) Messages() MessageRepository { return s.messages }
