package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/survivor-indexer/internal/cache"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/models"
	"github.com/wfunc/survivor-indexer/internal/store"
	"go.uber.org/zap"
)

// 保留的查询参数
const (
	paramOrderBy = "orderBy"
	paramSkip    = "skip"
	paramLimit   = "limit"
)

// 默认分页
const (
	defaultLimit = 20
	maxLimit     = 101
)

// listResponse 列表响应
type listResponse struct {
	Data  []store.Fields `json:"data"`
	Count int            `json:"count"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// list 查询集合，过滤条件为 field[op]=value
func (r *Router) list(c *gin.Context) {
	name := c.Param("collection")
	coll, ok := models.Lookup(name)
	if !ok || !coll.Public {
		r.fail(c, errors.Newf(errors.ErrNotFound, "未知集合 %s", name))
		return
	}

	q, err := r.parseQuery(c.Request.URL.Query())
	if err != nil {
		r.fail(c, err)
		return
	}

	key := cache.Key(name, q)
	if body, ok := r.cache.Get(key); ok {
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json; charset=utf-8", body)
		return
	}

	rows, err := r.finder.Find(c.Request.Context(), name, q)
	if err != nil {
		r.fail(c, err)
		return
	}
	if rows == nil {
		rows = []store.Fields{}
	}

	body, err := json.Marshal(listResponse{Data: rows, Count: len(rows), Skip: q.Skip, Limit: q.Limit})
	if err != nil {
		r.fail(c, errors.Wrap(err, errors.ErrUnknown, "编码响应失败"))
		return
	}
	r.cache.Set(key, body)

	c.Header("X-Cache", "MISS")
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (r *Router) limits() (int, int) {
	def, upper := r.cfg.DefaultLimit, r.cfg.MaxLimit
	if upper <= 0 {
		upper = maxLimit
	}
	if def <= 0 || def > upper {
		def = defaultLimit
	}
	return def, upper
}

// parseQuery 解析查询参数
func (r *Router) parseQuery(values url.Values) (store.Query, error) {
	def, upper := r.limits()
	q := store.Query{Limit: def}

	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		switch key {
		case paramOrderBy:
			field, dir, _ := strings.Cut(vals[0], ":")
			switch strings.ToLower(dir) {
			case "", "asc":
			case "desc":
				q.Desc = true
			default:
				return q, errors.Newf(errors.ErrInvalidParam, "无效的排序方向 %q", dir)
			}
			q.OrderBy = field

		case paramSkip:
			n, err := strconv.Atoi(vals[0])
			if err != nil || n < 0 {
				return q, errors.Newf(errors.ErrInvalidParam, "无效的 skip %q", vals[0])
			}
			q.Skip = n

		case paramLimit:
			n, err := strconv.Atoi(vals[0])
			if err != nil || n <= 0 {
				return q, errors.Newf(errors.ErrInvalidParam, "无效的 limit %q", vals[0])
			}
			if n > upper {
				n = upper
			}
			q.Limit = n

		default:
			field, op, err := parseFilterKey(key)
			if err != nil {
				return q, err
			}
			for _, v := range vals {
				f := store.Filter{Field: field, Op: op, Values: []string{v}}
				if op == store.OpIn || op == store.OpNotIn {
					f.Values = strings.Split(v, ",")
				}
				q.Filters = append(q.Filters, f)
			}
		}
	}
	return q, nil
}

// parseFilterKey 解析 field[op]，没有运算符时为 eq
func parseFilterKey(key string) (string, store.Op, error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, store.OpEq, nil
	}
	if !strings.HasSuffix(key, "]") || open == 0 {
		return "", "", errors.Newf(errors.ErrInvalidParam, "无效的过滤条件 %q", key)
	}
	op, ok := store.ParseOp(key[open+1 : len(key)-1])
	if !ok {
		return "", "", errors.Newf(errors.ErrInvalidParam, "不支持的运算符 %q", key)
	}
	return key[:open], op, nil
}

// fail 返回错误响应
func (r *Router) fail(c *gin.Context, err error) {
	appErr := errors.Wrap(err, errors.ErrUnknown)
	status := appErr.HTTPStatus()
	if status >= http.StatusInternalServerError {
		r.log.Error("查询失败",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err),
		)
	}

	body := *appErr
	body.Stack = nil
	c.AbortWithStatusJSON(status, errors.NewErrorResponse(&body, c.GetString(requestIDKey)))
}
