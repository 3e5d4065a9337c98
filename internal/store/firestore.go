package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNotFound is returned when a document does not exist. Firestore reports
// this as a gRPC NotFound; the translation happens here so callers never see
// transport codes.
var ErrNotFound = errors.New("not found")

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

// Ping issues a minimal read to verify the backend is reachable.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection(colUsers).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return fmt.Errorf("ping firestore: %w", err)
	}
	return nil
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ---- Customers ----

func (s *FirestoreStore) ListCustomers(ctx context.Context) ([]Customer, error) {
	iter := s.client.Collection(colCustomers).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var customers []Customer
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list customers: %w", err)
		}
		var c Customer
		if err := doc.DataTo(&c); err != nil {
			return nil, fmt.Errorf("decode customer %s: %w", doc.Ref.ID, err)
		}
		c.ID = doc.Ref.ID
		customers = append(customers, c)
	}
	return customers, nil
}

func (s *FirestoreStore) GetCustomer(ctx context.Context, id string) (Customer, error) {
	doc, err := s.client.Collection(colCustomers).Doc(id).Get(ctx)
	if notFound(err) {
		return Customer{}, ErrNotFound
	}
	if err != nil {
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	var c Customer
	if err := doc.DataTo(&c); err != nil {
		return Customer{}, fmt.Errorf("decode customer: %w", err)
	}
	c.ID = doc.Ref.ID
	return c, nil
}

// GetCustomerByUID resolves the auth identity that projects reference.
func (s *FirestoreStore) GetCustomerByUID(ctx context.Context, uid string) (Customer, error) {
	docs, err := s.client.Collection(colCustomers).Where("uid", "==", uid).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return Customer{}, fmt.Errorf("lookup customer by uid: %w", err)
	}
	if len(docs) == 0 {
		return Customer{}, ErrNotFound
	}
	var c Customer
	if err := docs[0].DataTo(&c); err != nil {
		return Customer{}, fmt.Errorf("decode customer: %w", err)
	}
	c.ID = docs[0].Ref.ID
	return c, nil
}

func (s *FirestoreStore) CreateCustomer(ctx context.Context, c Customer) error {
	if c.ID == "" {
		return errors.New("customer id is required")
	}
	if _, err := s.client.Collection(colCustomers).Doc(c.ID).Create(ctx, c); err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateCustomer(ctx context.Context, c Customer) error {
	if _, err := s.client.Collection(colCustomers).Doc(c.ID).Set(ctx, c); err != nil {
		return fmt.Errorf("update customer: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := s.client.Collection(colCustomers).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

// ---- Projects ----

func (s *FirestoreStore) ListProjects(ctx context.Context) ([]Project, error) {
	iter := s.client.Collection(colProjects).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var projects []Project
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list projects: %w", err)
		}
		var p Project
		if err := doc.DataTo(&p); err != nil {
			return nil, fmt.Errorf("decode project %s: %w", doc.Ref.ID, err)
		}
		p.ID = doc.Ref.ID
		projects = append(projects, p)
	}
	return projects, nil
}

func (s *FirestoreStore) GetProject(ctx context.Context, id string) (Project, error) {
	doc, err := s.client.Collection(colProjects).Doc(id).Get(ctx)
	if notFound(err) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	var p Project
	if err := doc.DataTo(&p); err != nil {
		return Project{}, fmt.Errorf("decode project: %w", err)
	}
	p.ID = doc.Ref.ID
	return p, nil
}

func (s *FirestoreStore) CreateProject(ctx context.Context, p Project) error {
	if p.ID == "" {
		return errors.New("project id is required")
	}
	if _, err := s.client.Collection(colProjects).Doc(p.ID).Create(ctx, p); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateProject(ctx context.Context, p Project) error {
	if _, err := s.client.Collection(colProjects).Doc(p.ID).Set(ctx, p); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *FirestoreStore) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.client.Collection(colProjects).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// ---- Folder file metadata ----

func (s *FirestoreStore) folderFiles(projectID, folderKey string) *firestore.CollectionRef {
	// files/projects/{projectID}/{folderKey}/files
	return s.client.Collection(colFiles).Doc("projects").Collection(projectID).Doc(folderKey).Collection(colFiles)
}

func (s *FirestoreStore) ListFolderFiles(ctx context.Context, projectID, folderKey string) ([]FileRecord, error) {
	iter := s.folderFiles(projectID, folderKey).OrderBy("uploadedAt", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	var files []FileRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list folder %s/%s: %w", projectID, folderKey, err)
		}
		var f FileRecord
		if err := doc.DataTo(&f); err != nil {
			return nil, fmt.Errorf("decode file %s: %w", doc.Ref.ID, err)
		}
		f.ID = doc.Ref.ID
		files = append(files, f)
	}
	return files, nil
}

func (s *FirestoreStore) PutFile(ctx context.Context, projectID, folderKey string, f FileRecord) error {
	if f.ID == "" {
		return errors.New("file id is required")
	}
	if _, err := s.folderFiles(projectID, folderKey).Doc(f.ID).Set(ctx, f); err != nil {
		return fmt.Errorf("put file: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetFileByName(ctx context.Context, projectID, folderKey, fileName string) (FileRecord, error) {
	docs, err := s.folderFiles(projectID, folderKey).Where("fileName", "==", fileName).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return FileRecord{}, fmt.Errorf("lookup file by name: %w", err)
	}
	if len(docs) == 0 {
		return FileRecord{}, ErrNotFound
	}
	var f FileRecord
	if err := docs[0].DataTo(&f); err != nil {
		return FileRecord{}, fmt.Errorf("decode file: %w", err)
	}
	f.ID = docs[0].Ref.ID
	return f, nil
}

func (s *FirestoreStore) DeleteFile(ctx context.Context, projectID, folderKey, id string) error {
	if _, err := s.folderFiles(projectID, folderKey).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// ---- Status records ----

func (s *FirestoreStore) statusFiles(kind string) *firestore.CollectionRef {
	// statuses/{kind}/files
	return s.client.Collection(colStatuses).Doc(kind).Collection(colFiles)
}

// StatusMap loads every status record of one kind, keyed by file key. The
// aggregator joins against this map in memory.
func (s *FirestoreStore) StatusMap(ctx context.Context, kind string) (map[string]StatusRecord, error) {
	iter := s.statusFiles(kind).Documents(ctx)
	defer iter.Stop()

	statuses := make(map[string]StatusRecord)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s statuses: %w", kind, err)
		}
		var rec StatusRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("decode status %s: %w", doc.Ref.ID, err)
		}
		statuses[doc.Ref.ID] = rec
	}
	return statuses, nil
}

func (s *FirestoreStore) GetStatus(ctx context.Context, kind, fileKey string) (StatusRecord, error) {
	doc, err := s.statusFiles(kind).Doc(fileKey).Get(ctx)
	if notFound(err) {
		return StatusRecord{}, ErrNotFound
	}
	if err != nil {
		return StatusRecord{}, fmt.Errorf("get %s status: %w", kind, err)
	}
	var rec StatusRecord
	if err := doc.DataTo(&rec); err != nil {
		return StatusRecord{}, fmt.Errorf("decode status: %w", err)
	}
	return rec, nil
}

// SetStatus writes a status record under the deterministic file key. Last
// write wins; the server assigns the timestamp.
func (s *FirestoreStore) SetStatus(ctx context.Context, kind, fileKey string, rec StatusRecord) error {
	if _, err := s.statusFiles(kind).Doc(fileKey).Set(ctx, rec); err != nil {
		return fmt.Errorf("set %s status: %w", kind, err)
	}
	return nil
}

func (s *FirestoreStore) DeleteStatus(ctx context.Context, kind, fileKey string) error {
	if _, err := s.statusFiles(kind).Doc(fileKey).Delete(ctx); err != nil {
		return fmt.Errorf("delete %s status: %w", kind, err)
	}
	return nil
}

// ---- Staff users ----

func (s *FirestoreStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	docs, err := s.client.Collection(colUsers).Where("email", "==", email).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return User{}, fmt.Errorf("lookup user by email: %w", err)
	}
	if len(docs) == 0 {
		return User{}, ErrNotFound
	}
	var u User
	if err := docs[0].DataTo(&u); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	u.ID = docs[0].Ref.ID
	return u, nil
}

func (s *FirestoreStore) GetUserByID(ctx context.Context, id string) (User, error) {
	doc, err := s.client.Collection(colUsers).Doc(id).Get(ctx)
	if notFound(err) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	var u User
	if err := doc.DataTo(&u); err != nil {
		return User{}, fmt.Errorf("decode user: %w", err)
	}
	u.ID = doc.Ref.ID
	return u, nil
}

func (s *FirestoreStore) ListUsers(ctx context.Context) ([]User, error) {
	iter := s.client.Collection(colUsers).OrderBy("createdAt", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var users []User
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		var u User
		if err := doc.DataTo(&u); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", doc.Ref.ID, err)
		}
		u.ID = doc.Ref.ID
		users = append(users, u)
	}
	return users, nil
}

func (s *FirestoreStore) HasUsers(ctx context.Context) (bool, error) {
	docs, err := s.client.Collection(colUsers).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return len(docs) > 0, nil
}

func (s *FirestoreStore) CreateUser(ctx context.Context, u User) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = u.CreatedAt
	if _, err := s.client.Collection(colUsers).Doc(u.ID).Create(ctx, u); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *FirestoreStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.client.Collection(colUsers).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "passwordHash", Value: passwordHash},
		{Path: "updatedAt", Value: time.Now()},
	})
	if notFound(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *FirestoreStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.client.Collection(colUsers).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "resetToken", Value: token},
		{Path: "resetExpiresAt", Value: expiresAt},
	})
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	docs, err := s.client.Collection(colUsers).Where("resetToken", "==", token).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return "", fmt.Errorf("lookup password reset: %w", err)
	}
	if len(docs) == 0 {
		return "", ErrNotFound
	}
	var u User
	if err := docs[0].DataTo(&u); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if u.ResetExpiresAt == nil || time.Now().After(*u.ResetExpiresAt) {
		return "", ErrNotFound
	}
	return docs[0].Ref.ID, nil
}

func (s *FirestoreStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	userID, err := s.GetPasswordReset(ctx, token)
	if err != nil {
		return err
	}
	_, err = s.client.Collection(colUsers).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "resetToken", Value: firestore.Delete},
		{Path: "resetExpiresAt", Value: firestore.Delete},
	})
	if err != nil {
		return fmt.Errorf("clear password reset: %w", err)
	}
	return nil
}

// ---- Refresh sessions (fallback when Redis is not configured) ----

func (s *FirestoreStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	sess := RefreshSession{
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	if _, err := s.client.Collection(colSessions).Doc(tokenHash).Set(ctx, sess); err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *FirestoreStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	doc, err := s.client.Collection(colSessions).Doc(tokenHash).Get(ctx)
	if notFound(err) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("lookup refresh session: %w", err)
	}
	var sess RefreshSession
	if err := doc.DataTo(&sess); err != nil {
		return User{}, fmt.Errorf("decode refresh session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt) {
		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.Printf("store: delete expired session: %v", err)
		}
		return User{}, ErrNotFound
	}
	return s.GetUserByID(ctx, sess.UserID)
}

func (s *FirestoreStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if _, err := s.client.Collection(colSessions).Doc(tokenHash).Delete(ctx); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// RevokeAccessToken denylists a logged-out access token's JTI until the
// token would have expired anyway.
func (s *FirestoreStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	if !time.Now().Before(expiresAt) {
		return nil
	}
	rec := RevokedToken{ExpiresAt: expiresAt, RevokedAt: time.Now()}
	if _, err := s.client.Collection(colRevoked).Doc(jti).Set(ctx, rec); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

// IsAccessTokenRevoked reports whether a JTI is on the denylist. Stale
// entries (the token expired on its own) are deleted in passing.
func (s *FirestoreStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	doc, err := s.client.Collection(colRevoked).Doc(jti).Get(ctx)
	if notFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	var rec RevokedToken
	if err := doc.DataTo(&rec); err != nil {
		return false, fmt.Errorf("decode revoked token: %w", err)
	}
	if time.Now().After(rec.ExpiresAt) {
		if _, err := doc.Ref.Delete(ctx); err != nil {
			log.Printf("store: delete stale revocation: %v", err)
		}
		return false, nil
	}
	return true, nil
}

// ---- Change notification ----

// WatchStatuses signals on changes to one status kind's records.
func (s *FirestoreStore) WatchStatuses(ctx context.Context, kind string) <-chan struct{} {
	return s.watchCollection(ctx, colStatuses, kind, colFiles)
}

// WatchProjects signals on changes to the project set.
func (s *FirestoreStore) WatchProjects(ctx context.Context) <-chan struct{} {
	return s.watchCollection(ctx, colProjects)
}

// WatchCustomers signals on changes to the customer set.
func (s *FirestoreStore) WatchCustomers(ctx context.Context) <-chan struct{} {
	return s.watchCollection(ctx, colCustomers)
}

// watchCollection streams one signal per snapshot change of the collection at
// the given path (alternating collection and document segments). The send is
// non-blocking so a slow consumer only coalesces signals, never stalls the
// listener. The channel closes when ctx is canceled. Listener errors are
// logged and the listener restarts after a short delay.
func (s *FirestoreStore) watchCollection(ctx context.Context, path ...string) <-chan struct{} {
	ref := s.client.Collection(path[0])
	for i := 1; i+1 < len(path); i += 2 {
		ref = ref.Doc(path[i]).Collection(path[i+1])
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		for {
			iter := ref.Snapshots(ctx)
			for {
				_, err := iter.Next()
				if err != nil {
					iter.Stop()
					if ctx.Err() != nil || status.Code(err) == codes.Canceled {
						return
					}
					log.Printf("store: watch %v: %v", path, err)
					break
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}()
	return ch
}
