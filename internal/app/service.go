package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"foreman/api/internal/aggregate"
	"foreman/api/internal/auth"
	"foreman/api/internal/authpw"
	"foreman/api/internal/blob"
	"foreman/api/internal/config"
	"foreman/api/internal/email"
	"foreman/api/internal/export"
	"foreman/api/internal/journal"
	"foreman/api/internal/live"
	"foreman/api/internal/rbac"
	"foreman/api/internal/screen"
	"foreman/api/internal/search"
	"foreman/api/internal/store"
	"foreman/api/internal/util"
)

// Session is the decoded caller identity for one request, plus the freshly
// issued token pair after login or refresh.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

// CustomerInput is the request body for customer create and update. Enabled
// is a pointer so an absent field keeps the current value.
type CustomerInput struct {
	UID                string `json:"uid"`
	CustomerNumber     string `json:"customerNumber"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	MobileNumber       string `json:"mobileNumber"`
	Enabled            *bool  `json:"enabled"`
	CanViewAllProjects bool   `json:"canViewAllProjects"`
}

// ProjectInput is the request body for project create and update.
type ProjectInput struct {
	Name              string `json:"name"`
	CustomerID        string `json:"customerId"`
	Year              int    `json:"year"`
	ProjectNumber     string `json:"projectNumber"`
	NotificationEmail string `json:"notificationEmail"`
	Enabled           *bool  `json:"enabled"`
	ThumbnailURL      string `json:"thumbnailUrl"`
}

// CreateUserInput is the request body for staff account creation.
type CreateUserInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// dataStore is the slice of the document store the service reads and
// writes. The concrete implementation is the Firestore store; tests supply
// fakes.
type dataStore interface {
	Ping(ctx context.Context) error

	ListCustomers(ctx context.Context) ([]store.Customer, error)
	GetCustomerByUID(ctx context.Context, uid string) (store.Customer, error)
	CreateCustomer(ctx context.Context, c store.Customer) error
	UpdateCustomer(ctx context.Context, c store.Customer) error
	DeleteCustomer(ctx context.Context, id string) error

	ListProjects(ctx context.Context) ([]store.Project, error)
	GetProject(ctx context.Context, id string) (store.Project, error)
	CreateProject(ctx context.Context, p store.Project) error
	UpdateProject(ctx context.Context, p store.Project) error
	DeleteProject(ctx context.Context, id string) error

	ListFolderFiles(ctx context.Context, projectID, folderKey string) ([]store.FileRecord, error)
	PutFile(ctx context.Context, projectID, folderKey string, f store.FileRecord) error
	GetFileByName(ctx context.Context, projectID, folderKey, fileName string) (store.FileRecord, error)
	DeleteFile(ctx context.Context, projectID, folderKey, id string) error

	StatusMap(ctx context.Context, kind string) (map[string]store.StatusRecord, error)
	SetStatus(ctx context.Context, kind, fileKey string, rec store.StatusRecord) error
	DeleteStatus(ctx context.Context, kind, fileKey string) error

	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	HasUsers(ctx context.Context) (bool, error)
}

// sessionStore is the refresh token and revocation backend: Redis when
// configured, the Firestore store otherwise. Both implement this surface.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

// blobStore is the uploaded content backend.
type blobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	ContentURL(ctx context.Context, key string) (string, error)
}

// auditJournal is the append-only activity trail. A nil journal disables
// auditing.
type auditJournal interface {
	Append(entry journal.Entry) (journal.Record, error)
	Recent(limit int) ([]journal.Record, error)
	TargetHistory(target string, limit int) ([]journal.Record, error)
}

// refresher requests a background re-aggregation pass.
type refresher interface {
	Kick()
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	blob      blobStore
	journal   auditJournal
	search    *search.Service
	mail      *email.Service
	exports   *export.Service
	passwords *authpw.Service
	state     *live.State
	agg       *aggregate.Aggregator
	refresh   refresher
}

func New(cfg config.Config, dataStore *store.FirestoreStore, sessions sessionStore, blobStore *blob.Store, journalSvc *journal.Service, searchSvc *search.Service, mailSvc *email.Service) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		blob:      blobStore,
		search:    searchSvc,
		mail:      mailSvc,
		exports:   export.NewService(),
		passwords: authpw.NewService(dataStore),
		state:     live.NewState(),
		agg:       aggregate.New(dataStore),
	}
	if journalSvc != nil {
		svc.journal = journalSvc
	}
	return svc
}

// AttachRefresher wires in the background watcher after construction; the
// watcher needs the service's RunRefresh first, so the cycle closes here.
func (s *Service) AttachRefresher(r refresher) {
	s.refresh = r
}

func (s *Service) kick() {
	if s.refresh != nil {
		s.refresh.Kick()
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// Bootstrap prepares a fresh deployment: seeds the admin account when no
// staff exist yet and pushes the current entity sets into the search index.
func (s *Service) Bootstrap(ctx context.Context) error {
	has, err := s.store.HasUsers(ctx)
	if err != nil {
		return fmt.Errorf("check staff accounts: %w", err)
	}
	if !has {
		user, err := s.passwords.CreateStaff(ctx, authpw.CreateStaffRequest{
			Email:       s.cfg.AdminEmail,
			Password:    s.cfg.AdminPassword,
			DisplayName: s.cfg.AdminName,
			Role:        string(rbac.RoleAdmin),
		})
		if err != nil {
			return fmt.Errorf("seed admin account: %w", err)
		}
		log.Printf("app: seeded admin account %s", user.Email)
	}

	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("seed search customers: %w", err)
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("seed search projects: %w", err)
	}
	s.search.ReindexAll(nil, searchCustomerRecords(customers), searchProjectRecords(projects))
	return nil
}

// ---- Sessions ----

// Login authenticates a staff member and issues a token pair.
func (s *Service) Login(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: emailAddr, Password: password})
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair issued. Name and role come from the user record, not the old token,
// so role changes take effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	owner, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, owner.ID)
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Name:  user.DisplayName,
		Email: user.Email,
		Role:  string(rbac.Normalize(user.Role)),
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         string(rbac.Normalize(user.Role)),
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	// Role and name are re-read so demotions and deactivations apply
	// mid-token, not just at the next refresh.
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	if user.DeactivatedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      string(rbac.Normalize(user.Role)),
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// ---- Live snapshot ----

// RunRefresh executes one full aggregation pass and publishes the result.
// On any fetch error the pass fails and the previous snapshot stays live.
func (s *Service) RunRefresh(ctx context.Context) error {
	gen := s.state.BeginPass()

	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return fmt.Errorf("refresh customers: %w", err)
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("refresh projects: %w", err)
	}
	readMap, err := s.store.StatusMap(ctx, store.StatusRead)
	if err != nil {
		return fmt.Errorf("refresh read statuses: %w", err)
	}
	approvalMap, err := s.store.StatusMap(ctx, store.StatusApproval)
	if err != nil {
		return fmt.Errorf("refresh approval statuses: %w", err)
	}

	rows, err := s.agg.Run(ctx, aggregate.Inputs{
		Folders:   screen.AllFolders(),
		Projects:  projects,
		Customers: customers,
		Read:      readMap,
		Approval:  approvalMap,
	})
	if err != nil {
		return err
	}

	if !s.state.Publish(gen, rows, projects, customers) {
		return nil
	}
	s.search.ReindexFiles(searchFileRecords(rows))
	return nil
}

// ScreenPage renders one dashboard screen from the latest published
// snapshot.
func (s *Service) ScreenPage(name string, q screen.Query) (map[string]any, error) {
	def, ok := screen.ByName(name)
	if !ok {
		return nil, notFoundError("unknown screen")
	}
	if q.PageSize <= 0 {
		q.PageSize = s.cfg.PageSize
	}

	snap := s.state.Current()
	table := screen.NewTable(def, q.PageSize)
	table.SetFilter(q.ProjectID, q.Text)
	table.SetPage(q.Page)
	page := table.View(snap.Rows)

	rows := page.Rows
	if rows == nil {
		rows = []aggregate.Row{}
	}
	return map[string]any{
		"screen":      def.Name,
		"title":       def.Title,
		"rows":        rows,
		"page":        page.Number,
		"pageSize":    page.Size,
		"totalRows":   page.TotalRows,
		"totalPages":  page.TotalPages,
		"generation":  snap.Generation,
		"refreshedAt": snap.RefreshedAt,
	}, nil
}

// ---- Customers ----

func (s *Service) Customers(ctx context.Context, q string, page int) (map[string]any, error) {
	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	projectCounts := make(map[string]int, len(customers))
	for _, project := range projects {
		projectCounts[project.CustomerID]++
	}

	needle := strings.ToLower(strings.TrimSpace(q))
	items := make([]map[string]any, 0, len(customers))
	for _, customer := range customers {
		if needle != "" && !customerMatches(customer, needle) {
			continue
		}
		items = append(items, customerPayload(customer, projectCounts[customer.UID]))
	}
	return listPage(items, page, s.cfg.PageSize, "customers"), nil
}

func (s *Service) Customer(ctx context.Context, uid string) (map[string]any, error) {
	customer, err := s.store.GetCustomerByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	projectCount := 0
	for _, project := range projects {
		if project.CustomerID == customer.UID {
			projectCount++
		}
	}
	return customerPayload(customer, projectCount), nil
}

func (s *Service) CreateCustomer(ctx context.Context, input CustomerInput, session Session) (map[string]any, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Name == "" {
		return nil, validationError("name is required")
	}
	if input.Email == "" {
		return nil, validationError("email is required")
	}

	uid := strings.TrimSpace(input.UID)
	if uid == "" {
		// Placeholder identity until the customer signs up in the portal.
		uid = util.NewID("uid")
	} else {
		_, err := s.store.GetCustomerByUID(ctx, uid)
		if err == nil {
			return nil, conflictError("CUSTOMER_EXISTS", "a customer with this uid already exists")
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	customer := store.Customer{
		ID:                 util.NewID("cus"),
		UID:                uid,
		CustomerNumber:     strings.TrimSpace(input.CustomerNumber),
		Email:              input.Email,
		Name:               input.Name,
		MobileNumber:       strings.TrimSpace(input.MobileNumber),
		Enabled:            enabled,
		CanViewAllProjects: input.CanViewAllProjects,
		CreatedAt:          time.Now(),
	}
	if err := s.store.CreateCustomer(ctx, customer); err != nil {
		return nil, err
	}

	s.appendJournal(journal.Entry{
		Action:  "customer.create",
		Actor:   session.UserName,
		Target:  "customers/" + customer.UID,
		Details: map[string]string{"name": customer.Name},
	})
	s.search.IndexCustomer(searchCustomerRecord(customer))
	s.kick()
	return customerPayload(customer, 0), nil
}

func (s *Service) UpdateCustomer(ctx context.Context, uid string, input CustomerInput, session Session) (map[string]any, error) {
	customer, err := s.store.GetCustomerByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Name == "" {
		return nil, validationError("name is required")
	}
	if input.Email == "" {
		return nil, validationError("email is required")
	}

	customer.Name = input.Name
	customer.Email = input.Email
	customer.CustomerNumber = strings.TrimSpace(input.CustomerNumber)
	customer.MobileNumber = strings.TrimSpace(input.MobileNumber)
	customer.CanViewAllProjects = input.CanViewAllProjects
	if input.Enabled != nil {
		customer.Enabled = *input.Enabled
	}
	if err := s.store.UpdateCustomer(ctx, customer); err != nil {
		return nil, err
	}

	s.appendJournal(journal.Entry{
		Action:  "customer.update",
		Actor:   session.UserName,
		Target:  "customers/" + customer.UID,
		Details: map[string]string{"name": customer.Name},
	})
	s.search.IndexCustomer(searchCustomerRecord(customer))
	s.kick()

	projectCount := 0
	for _, project := range s.state.Current().Projects {
		if project.CustomerID == customer.UID {
			projectCount++
		}
	}
	return customerPayload(customer, projectCount), nil
}

func (s *Service) DeleteCustomer(ctx context.Context, uid string, session Session) error {
	customer, err := s.store.GetCustomerByUID(ctx, uid)
	if err != nil {
		return err
	}
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	for _, project := range projects {
		if project.CustomerID == customer.UID {
			return conflictError("CUSTOMER_HAS_PROJECTS", "delete or reassign the customer's projects first")
		}
	}
	if err := s.store.DeleteCustomer(ctx, customer.ID); err != nil {
		return err
	}

	s.appendJournal(journal.Entry{
		Action:  "customer.delete",
		Actor:   session.UserName,
		Target:  "customers/" + customer.UID,
		Details: map[string]string{"name": customer.Name},
	})
	s.search.DeleteCustomer(customer.ID)
	s.kick()
	return nil
}

// ---- Projects ----

func (s *Service) Projects(ctx context.Context, q, customerUID string, page int) (map[string]any, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(customers))
	for _, customer := range customers {
		names[customer.UID] = customer.Name
	}

	uploadFolders := make(map[string]bool, len(screen.Files.Folders))
	for _, folder := range screen.Files.Folders {
		uploadFolders[folder.Path()] = true
	}
	fileCounts := make(map[string]int)
	unreadCounts := make(map[string]int)
	for _, row := range s.state.Current().Rows {
		fileCounts[row.ProjectID]++
		if uploadFolders[row.FolderPath] && !row.Done(store.StatusRead) {
			unreadCounts[row.ProjectID]++
		}
	}

	needle := strings.ToLower(strings.TrimSpace(q))
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		if customerUID != "" && project.CustomerID != customerUID {
			continue
		}
		if needle != "" && !projectMatches(project, needle) {
			continue
		}
		items = append(items, projectPayload(project, names[project.CustomerID], fileCounts[project.ID], unreadCounts[project.ID]))
	}
	return listPage(items, page, s.cfg.PageSize, "projects"), nil
}

func (s *Service) Project(ctx context.Context, id string) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	customerName := ""
	if customer, err := s.store.GetCustomerByUID(ctx, project.CustomerID); err == nil {
		customerName = customer.Name
	}
	files, unread := s.snapshotCounts(project.ID)
	return projectPayload(project, customerName, files, unread), nil
}

func (s *Service) CreateProject(ctx context.Context, input ProjectInput, session Session) (map[string]any, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, validationError("name is required")
	}
	input.CustomerID = strings.TrimSpace(input.CustomerID)
	if input.CustomerID == "" {
		return nil, validationError("customerId is required")
	}
	customer, err := s.store.GetCustomerByUID(ctx, input.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError("customerId does not match a customer")
	}
	if err != nil {
		return nil, err
	}

	year := input.Year
	if year == 0 {
		year = time.Now().Year()
	}
	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}
	project := store.Project{
		ID:                util.NewID("prj"),
		Name:              input.Name,
		CustomerID:        customer.UID,
		Year:              year,
		ProjectNumber:     strings.TrimSpace(input.ProjectNumber),
		NotificationEmail: strings.TrimSpace(input.NotificationEmail),
		Enabled:           enabled,
		ThumbnailURL:      strings.TrimSpace(input.ThumbnailURL),
		CreatedAt:         time.Now(),
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}

	s.appendJournal(journal.Entry{
		Action:  "project.create",
		Actor:   session.UserName,
		Project: project.ID,
		Target:  "projects/" + project.ID,
		Details: map[string]string{"name": project.Name},
	})
	s.search.IndexProject(searchProjectRecord(project))
	s.kick()
	return projectPayload(project, customer.Name, 0, 0), nil
}

func (s *Service) UpdateProject(ctx context.Context, id string, input ProjectInput, session Session) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, validationError("name is required")
	}

	input.CustomerID = strings.TrimSpace(input.CustomerID)
	if input.CustomerID != "" && input.CustomerID != project.CustomerID {
		customer, err := s.store.GetCustomerByUID(ctx, input.CustomerID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, validationError("customerId does not match a customer")
		}
		if err != nil {
			return nil, err
		}
		project.CustomerID = customer.UID
	}

	project.Name = input.Name
	if input.Year != 0 {
		project.Year = input.Year
	}
	project.ProjectNumber = strings.TrimSpace(input.ProjectNumber)
	project.NotificationEmail = strings.TrimSpace(input.NotificationEmail)
	project.ThumbnailURL = strings.TrimSpace(input.ThumbnailURL)
	if input.Enabled != nil {
		project.Enabled = *input.Enabled
	}
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}

	s.appendJournal(journal.Entry{
		Action:  "project.update",
		Actor:   session.UserName,
		Project: project.ID,
		Target:  "projects/" + project.ID,
		Details: map[string]string{"name": project.Name},
	})
	s.search.IndexProject(searchProjectRecord(project))
	s.kick()

	customerName := ""
	if customer, err := s.store.GetCustomerByUID(ctx, project.CustomerID); err == nil {
		customerName = customer.Name
	}
	files, unread := s.snapshotCounts(project.ID)
	return projectPayload(project, customerName, files, unread), nil
}

func (s *Service) DeleteProject(ctx context.Context, id string, session Session) error {
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return err
	}

	purged := s.purgeProjectFiles(ctx, project.ID)
	if err := s.store.DeleteProject(ctx, project.ID); err != nil {
		return err
	}

	s.appendJournal(journal.Entry{
		Action:  "project.delete",
		Actor:   session.UserName,
		Project: project.ID,
		Target:  "projects/" + project.ID,
		Details: map[string]string{"name": project.Name, "filesPurged": strconv.Itoa(purged)},
	})
	s.search.DeleteProject(project.ID)
	s.kick()
	return nil
}

// purgeProjectFiles removes everything belonging to a project's files across
// all folders: metadata documents, status records, blob content, and search
// entries. Failures are logged and skipped so a half-reachable backend
// cannot wedge the delete.
func (s *Service) purgeProjectFiles(ctx context.Context, projectID string) int {
	purged := 0
	for _, folder := range screen.AllFolders() {
		files, err := s.store.ListFolderFiles(ctx, projectID, folder.Key())
		if err != nil {
			log.Printf("app: purge list %s/%s: %v", projectID, folder.Key(), err)
			continue
		}
		for _, file := range files {
			if err := s.store.DeleteFile(ctx, projectID, folder.Key(), file.ID); err != nil {
				log.Printf("app: purge file %s: %v", file.ID, err)
				continue
			}
			s.removeFileTraces(ctx, store.FileKey(projectID, folder.Key(), file.FileName), file.StorageID)
			purged++
		}
	}
	return purged
}

// ---- Files ----

func (s *Service) UploadFile(ctx context.Context, projectID, folderKey, fileName string, content io.Reader, size int64, contentType string, session Session) (map[string]any, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	folder, ok := findFolder(folderKey)
	if !ok {
		return nil, validationError("unknown folder")
	}
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, validationError("file name is required")
	}
	if strings.ContainsAny(fileName, `/\`) {
		return nil, validationError("file name must not contain path separators")
	}

	// Re-uploading the same name replaces the document in place, keeping one
	// metadata record per file path.
	id := util.NewID("fil")
	existing, err := s.store.GetFileByName(ctx, projectID, folderKey, fileName)
	if err == nil {
		id = existing.ID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	objectKey := store.ObjectKey(projectID, folderKey, fileName)
	if err := s.blob.Put(ctx, objectKey, content, size, contentType); err != nil {
		return nil, fmt.Errorf("store content: %w", err)
	}

	rec := store.FileRecord{
		ID:          id,
		FileName:    fileName,
		StorageID:   objectKey,
		Size:        size,
		ContentType: contentType,
		UploadedBy:  session.UserName,
		UploadedAt:  time.Now(),
	}
	if err := s.store.PutFile(ctx, projectID, folderKey, rec); err != nil {
		return nil, err
	}

	key := store.FileKey(projectID, folderKey, fileName)
	s.appendJournal(journal.Entry{
		Action:  "file.upload",
		Actor:   session.UserName,
		Project: projectID,
		Target:  key,
		Details: map[string]string{"folder": folder.Name, "file": fileName},
	})

	searchRec := search.FileRecord{
		Key:         key,
		FileName:    fileName,
		FolderName:  folder.Name,
		ProjectID:   projectID,
		ProjectName: project.Name,
	}
	if customer, err := s.store.GetCustomerByUID(ctx, project.CustomerID); err == nil {
		searchRec.CustomerName = customer.Name
		searchRec.CustomerNumber = customer.CustomerNumber
	}
	s.search.IndexFile(searchRec)

	s.notifyUpload(project, folder, fileName, session.UserName)
	s.kick()

	return map[string]any{
		"key":         key,
		"fileId":      rec.ID,
		"fileName":    rec.FileName,
		"folder":      folder.Name,
		"projectId":   projectID,
		"storageId":   rec.StorageID,
		"size":        rec.Size,
		"contentType": rec.ContentType,
		"uploadedBy":  rec.UploadedBy,
		"uploadedAt":  rec.UploadedAt,
	}, nil
}

func (s *Service) ContentURL(ctx context.Context, fileKey string) (map[string]any, error) {
	projectID, folderKey, fileName, err := store.DecodeFileKey(fileKey, folderKeys())
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetFileByName(ctx, projectID, folderKey, fileName)
	if err != nil {
		return nil, err
	}
	url, err := s.blob.ContentURL(ctx, rec.StorageID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"url":              url,
		"fileName":         fileName,
		"expiresInSeconds": int(s.cfg.ContentURLTTL.Seconds()),
	}, nil
}

func (s *Service) DeleteFile(ctx context.Context, fileKey string, session Session) error {
	projectID, folderKey, fileName, err := store.DecodeFileKey(fileKey, folderKeys())
	if err != nil {
		return err
	}
	rec, err := s.store.GetFileByName(ctx, projectID, folderKey, fileName)
	if err != nil {
		return err
	}
	if err := s.store.DeleteFile(ctx, projectID, folderKey, rec.ID); err != nil {
		return err
	}
	s.removeFileTraces(ctx, fileKey, rec.StorageID)

	s.appendJournal(journal.Entry{
		Action:  "file.delete",
		Actor:   session.UserName,
		Project: projectID,
		Target:  fileKey,
		Details: map[string]string{"file": fileName},
	})
	s.kick()
	return nil
}

// removeFileTraces clears the records hanging off a deleted file: status
// documents, blob content, and the search entry. Failures are logged; the
// metadata document is already gone.
func (s *Service) removeFileTraces(ctx context.Context, fileKey, storageID string) {
	for _, kind := range []string{store.StatusRead, store.StatusApproval} {
		if err := s.store.DeleteStatus(ctx, kind, fileKey); err != nil {
			log.Printf("app: delete %s status %s: %v", kind, fileKey, err)
		}
	}
	if storageID != "" {
		if err := s.blob.Remove(ctx, storageID); err != nil {
			log.Printf("app: remove blob %s: %v", storageID, err)
		}
	}
	s.search.DeleteFile(fileKey)
}

// ---- Statuses ----

func (s *Service) MarkRead(ctx context.Context, fileKey string, session Session) (map[string]any, error) {
	return s.setStatus(ctx, store.StatusRead, fileKey, session)
}

func (s *Service) Approve(ctx context.Context, fileKey string, session Session) (map[string]any, error) {
	payload, err := s.setStatus(ctx, store.StatusApproval, fileKey, session)
	if err != nil {
		return nil, err
	}
	s.notifyApproval(ctx, fileKey, session.UserName)
	return payload, nil
}

func (s *Service) setStatus(ctx context.Context, kind, fileKey string, session Session) (map[string]any, error) {
	projectID, folderKey, fileName, err := store.DecodeFileKey(fileKey, folderKeys())
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetFileByName(ctx, projectID, folderKey, fileName)
	if err != nil {
		return nil, err
	}

	// The status records which stored version was acted on; the key alone
	// survives re-uploads.
	status := store.StatusRecord{Done: true, Actor: session.UserName, StorageID: rec.StorageID}
	if err := s.store.SetStatus(ctx, kind, fileKey, status); err != nil {
		return nil, err
	}

	action := "file.read"
	if kind == store.StatusApproval {
		action = "file.approve"
	}
	s.appendJournal(journal.Entry{
		Action:  action,
		Actor:   session.UserName,
		Project: projectID,
		Target:  fileKey,
		Details: map[string]string{"file": fileName},
	})
	s.kick()

	return map[string]any{
		"key":   fileKey,
		"kind":  kind,
		"done":  true,
		"actor": session.UserName,
	}, nil
}

// ---- Activity ----

func (s *Service) Activity(target string, limit int) (map[string]any, error) {
	if limit <= 0 {
		limit = 50
	}
	if s.journal == nil {
		return map[string]any{"entries": []journal.Record{}}, nil
	}

	var (
		records []journal.Record
		err     error
	)
	if target != "" {
		records, err = s.journal.TargetHistory(target, limit)
	} else {
		records, err = s.journal.Recent(limit)
	}
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []journal.Record{}
	}
	return map[string]any{"entries": records}, nil
}

// ---- Search ----

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

// ---- Export ----

// ExportScreen renders the filtered rows of one screen as a downloadable
// file. Pagination does not apply; the export covers every filtered row.
func (s *Service) ExportScreen(name, format string, q screen.Query) (*export.Result, error) {
	def, ok := screen.ByName(name)
	if !ok {
		return nil, notFoundError("unknown screen")
	}
	parsed, err := export.ParseFormat(format)
	if err != nil {
		return nil, validationError(err.Error())
	}

	snap := s.state.Current()
	table := screen.NewTable(def, 0)
	table.SetFilter(q.ProjectID, q.Text)
	page := table.View(snap.Rows)

	rows := make([]export.Row, 0, len(page.Rows))
	for _, row := range page.Rows {
		exported := export.Row{
			CustomerNumber: row.CustomerNumber,
			CustomerName:   row.CustomerName,
			ProjectName:    row.ProjectName,
			FolderName:     row.FolderName,
			FileName:       row.FileName,
			UploadedBy:     row.UploadedBy,
			UploadedAt:     row.UploadedAt,
		}
		if st := row.Status(def.StatusKind); st != nil {
			exported.StatusDone = st.Done
			exported.StatusActor = st.Actor
			exported.StatusAt = st.At
		}
		rows = append(rows, exported)
	}

	return s.exports.Export(export.Request{
		Title:         def.Title,
		StatusHeading: statusHeading(def.StatusKind),
		Format:        parsed,
		Rows:          rows,
	})
}

// ---- Staff accounts ----

func (s *Service) Users(ctx context.Context) (map[string]any, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(users))
	for _, user := range users {
		items = append(items, map[string]any{
			"id":          user.ID,
			"displayName": user.DisplayName,
			"email":       user.Email,
			"role":        user.Role,
			"createdAt":   user.CreatedAt,
			"deactivated": user.DeactivatedAt != nil,
		})
	}
	return map[string]any{"users": items}, nil
}

func (s *Service) CreateUser(ctx context.Context, input CreateUserInput, session Session) (map[string]any, error) {
	user, err := s.passwords.CreateStaff(ctx, authpw.CreateStaffRequest{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
		Role:        input.Role,
	})
	if err != nil {
		return nil, err
	}
	s.appendJournal(journal.Entry{
		Action:  "user.create",
		Actor:   session.UserName,
		Target:  "users/" + user.ID,
		Details: map[string]string{"email": user.Email, "role": user.Role},
	})
	return map[string]any{
		"id":          user.ID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"role":        user.Role,
	}, nil
}

func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	return s.passwords.ChangePassword(ctx, session.UserID, current, next)
}

// RequestPasswordReset creates a reset token and mails the reset link. The
// token is returned to the caller only when no mailer is configured, as a
// development bypass; otherwise it travels by email alone.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) (string, error) {
	token, err := s.passwords.RequestPasswordReset(ctx, emailAddr)
	if err != nil || token == "" {
		return "", err
	}
	if s.mail == nil || !s.mail.IsConfigured() {
		return token, nil
	}

	resetURL := strings.TrimRight(s.cfg.DashboardURL, "/") + "/reset-password?token=" + token
	userName := ""
	if user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(emailAddr))); err == nil {
		userName = user.DisplayName
	}
	go func() {
		if err := s.mail.SendPasswordResetEmail(strings.TrimSpace(emailAddr), userName, resetURL); err != nil {
			log.Printf("app: password reset email: %v", err)
		}
	}()
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.passwords.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

// ---- Helpers ----

func (s *Service) appendJournal(entry journal.Entry) {
	if s.journal == nil {
		return
	}
	if _, err := s.journal.Append(entry); err != nil {
		log.Printf("app: journal %s %s: %v", entry.Action, entry.Target, err)
	}
}

// notifyUpload sends the new-file notification: uploads into the customer
// upload folders go to the office inbox, published documents go to the
// project's notification address.
func (s *Service) notifyUpload(project store.Project, folder aggregate.Folder, fileName, uploadedBy string) {
	if s.mail == nil || !s.mail.IsConfigured() {
		return
	}
	to := project.NotificationEmail
	if customerUploadFolder(folder.Key()) {
		to = s.cfg.OfficeEmail
	}
	if to == "" {
		return
	}
	go func() {
		if err := s.mail.SendUploadNotification([]string{to}, project.Name, folder.Name, fileName, uploadedBy); err != nil {
			log.Printf("app: upload notification: %v", err)
		}
	}()
}

func (s *Service) notifyApproval(ctx context.Context, fileKey, approvedBy string) {
	if s.mail == nil || !s.mail.IsConfigured() {
		return
	}
	projectID, _, fileName, err := store.DecodeFileKey(fileKey, folderKeys())
	if err != nil {
		return
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil || project.NotificationEmail == "" {
		return
	}
	go func() {
		if err := s.mail.SendApprovalNotice([]string{project.NotificationEmail}, project.Name, fileName, approvedBy); err != nil {
			log.Printf("app: approval notice: %v", err)
		}
	}()
}

func (s *Service) snapshotCounts(projectID string) (files, unread int) {
	uploadFolders := make(map[string]bool, len(screen.Files.Folders))
	for _, folder := range screen.Files.Folders {
		uploadFolders[folder.Path()] = true
	}
	for _, row := range s.state.Current().Rows {
		if row.ProjectID != projectID {
			continue
		}
		files++
		if uploadFolders[row.FolderPath] && !row.Done(store.StatusRead) {
			unread++
		}
	}
	return files, unread
}

func customerPayload(c store.Customer, projectCount int) map[string]any {
	return map[string]any{
		"id":                 c.ID,
		"uid":                c.UID,
		"customerNumber":     c.CustomerNumber,
		"name":               c.Name,
		"email":              c.Email,
		"mobileNumber":       c.MobileNumber,
		"enabled":            c.Enabled,
		"canViewAllProjects": c.CanViewAllProjects,
		"createdAt":          c.CreatedAt,
		"projectCount":       projectCount,
	}
}

func projectPayload(p store.Project, customerName string, fileCount, unreadCount int) map[string]any {
	return map[string]any{
		"id":                p.ID,
		"name":              p.Name,
		"customerId":        p.CustomerID,
		"customerName":      customerName,
		"year":              p.Year,
		"projectNumber":     p.ProjectNumber,
		"notificationEmail": p.NotificationEmail,
		"enabled":           p.Enabled,
		"thumbnailUrl":      p.ThumbnailURL,
		"createdAt":         p.CreatedAt,
		"fileCount":         fileCount,
		"unreadCount":       unreadCount,
	}
}

func customerMatches(c store.Customer, needle string) bool {
	for _, field := range []string{c.Name, c.Email, c.CustomerNumber, c.MobileNumber} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func projectMatches(p store.Project, needle string) bool {
	for _, field := range []string{p.Name, p.ProjectNumber, strconv.Itoa(p.Year)} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// listPage windows already-filtered entity payloads the same way the screen
// pager does: the page number clamps into range and a size of zero or less
// returns everything as one page.
func listPage(items []map[string]any, page, size int, key string) map[string]any {
	total := len(items)
	totalPages := 1
	if size > 0 {
		totalPages = (total + size - 1) / size
		if totalPages < 1 {
			totalPages = 1
		}
		if page < 1 {
			page = 1
		}
		if page > totalPages {
			page = totalPages
		}
		start := (page - 1) * size
		end := start + size
		if start > total {
			start = total
		}
		if end > total {
			end = total
		}
		items = items[start:end]
	} else {
		page = 1
		size = total
	}
	return map[string]any{
		key:          items,
		"page":       page,
		"pageSize":   size,
		"totalRows":  total,
		"totalPages": totalPages,
	}
}

func statusHeading(kind string) string {
	if kind == store.StatusApproval {
		return "Approved"
	}
	return "Read"
}

func folderKeys() []string {
	folders := screen.AllFolders()
	keys := make([]string, 0, len(folders))
	for _, folder := range folders {
		keys = append(keys, folder.Key())
	}
	return keys
}

func findFolder(folderKey string) (aggregate.Folder, bool) {
	for _, folder := range screen.AllFolders() {
		if folder.Key() == folderKey {
			return folder, true
		}
	}
	return aggregate.Folder{}, false
}

func customerUploadFolder(folderKey string) bool {
	for _, folder := range screen.Files.Folders {
		if folder.Key() == folderKey {
			return true
		}
	}
	return false
}

func searchFileRecords(rows []aggregate.Row) []search.FileRecord {
	records := make([]search.FileRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, search.FileRecord{
			Key:            row.Key,
			FileName:       row.FileName,
			FolderName:     row.FolderName,
			ProjectID:      row.ProjectID,
			ProjectName:    row.ProjectName,
			CustomerName:   row.CustomerName,
			CustomerNumber: row.CustomerNumber,
		})
	}
	return records
}

func searchCustomerRecord(c store.Customer) search.CustomerRecord {
	return search.CustomerRecord{
		ID:             c.ID,
		Name:           c.Name,
		Email:          c.Email,
		CustomerNumber: c.CustomerNumber,
		MobileNumber:   c.MobileNumber,
	}
}

func searchCustomerRecords(customers []store.Customer) []search.CustomerRecord {
	records := make([]search.CustomerRecord, 0, len(customers))
	for _, c := range customers {
		records = append(records, searchCustomerRecord(c))
	}
	return records
}

func searchProjectRecord(p store.Project) search.ProjectRecord {
	return search.ProjectRecord{
		ID:            p.ID,
		Name:          p.Name,
		ProjectNumber: p.ProjectNumber,
		Year:          strconv.Itoa(p.Year),
		CustomerID:    p.CustomerID,
	}
}

func searchProjectRecords(projects []store.Project) []search.ProjectRecord {
	records := make([]search.ProjectRecord, 0, len(projects))
	for _, p := range projects {
		records = append(records, searchProjectRecord(p))
	}
	return records
}
