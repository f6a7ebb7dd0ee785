package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"jurisai-go/internal/model"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/gemini"
	"jurisai-go/pkg/tasks"
)

type fakeUploader struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (f *fakeUploader) Upload(_ context.Context, _ []byte, _ string, name string) (string, error) {
	f.calls.Add(1)
	if f.fail[name] {
		return "", errors.New("quota exceeded")
	}
	return "https://files.example/" + name, nil
}

type fakeGenerator struct {
	mu   sync.Mutex
	reqs []gemini.GenerateRequest
	resp *gemini.GenerateResponse
	err  error
	// started 非空时，Generate 先发送信号，再等待 release 关闭
	started chan struct{}
	release chan struct{}
}

func (f *fakeGenerator) Generate(_ context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp == nil {
		return &gemini.GenerateResponse{Text: "respuesta"}, nil
	}
	return f.resp, nil
}

func (f *fakeGenerator) last() gemini.GenerateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

// fakeCaseService 在内存中保存案件。
type fakeCaseService struct {
	mu      sync.Mutex
	cases   map[string]model.Conversation
	users   map[string]*model.User
	saveErr error
	saves   int
}

func newFakeCaseService() *fakeCaseService {
	return &fakeCaseService{cases: map[string]model.Conversation{}, users: map[string]*model.User{}}
}

func (f *fakeCaseService) Save(_ context.Context, conv model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return &model.PersistenceError{Op: "save case", Err: f.saveErr}
	}
	conv.Messages = model.CloneMessages(conv.Messages)
	f.cases[conv.ID] = conv
	return nil
}

func (f *fakeCaseService) LoadAll(_ context.Context, username string) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.cases {
		if c.Username == username {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCaseService) Load(_ context.Context, username, id string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok || c.Username != username {
		return nil, &model.NotFoundError{Resource: "case", ID: id}
	}
	return &c, nil
}

func (f *fakeCaseService) Delete(_ context.Context, username, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cases[id]
	if !ok || c.Username != username {
		return &model.NotFoundError{Resource: "case", ID: id}
	}
	delete(f.cases, id)
	return nil
}

func (f *fakeCaseService) LoadUser(_ context.Context, username string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, &model.NotFoundError{Resource: "user", ID: username}
	}
	return u, nil
}

func (f *fakeCaseService) SaveUser(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.Username] = user
	return nil
}

type fakeSessionRepo struct {
	mu        sync.Mutex
	active    map[string]string
	blacklist map[string]bool
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{active: map[string]string{}, blacklist: map[string]bool{}}
}

func (f *fakeSessionRepo) GetOrCreateActiveConversation(_ context.Context, username string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.active[username]; ok {
		return id, nil
	}
	id := model.NewConversationID()
	f.active[username] = id
	return id, nil
}

func (f *fakeSessionRepo) SetActiveConversation(_ context.Context, username, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[username] = id
	return nil
}

func (f *fakeSessionRepo) ClearActiveConversation(_ context.Context, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, username)
	return nil
}

func (f *fakeSessionRepo) BlacklistToken(_ context.Context, tok string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blacklist[tok] = true
	return nil
}

func (f *fakeSessionRepo) IsTokenBlacklisted(_ context.Context, tok string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blacklist[tok], nil
}

type fakePublisher struct {
	mu    sync.Mutex
	tasks []tasks.CaseIndexTask
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, task tasks.CaseIndexTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func openSession(username string) (*session.Manager, *session.Session) {
	m := session.NewManager(newFakeSessionRepo())
	s, err := m.Open(context.Background(), username)
	if err != nil {
		panic(err)
	}
	return m, s
}

func textFile(name, content string) RawFile {
	return RawFile{
		Name:     name,
		MIMEType: "text/plain",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

// blockingFile 在 Open 时发出信号，并等待 release 关闭后才返回内容。
func blockingFile(name, content string, opened chan<- struct{}, release <-chan struct{}) RawFile {
	return RawFile{
		Name:     name,
		MIMEType: "text/plain",
		Open: func() (io.ReadCloser, error) {
			opened <- struct{}{}
			<-release
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func brokenFile(name string) RawFile {
	return RawFile{
		Name: name,
		Open: func() (io.ReadCloser, error) {
			return nil, fmt.Errorf("permission denied")
		},
	}
}
