// Package profilegate は認証状態とプロフィールの有無から次の遷移先を決める。
//
// メールと電話番号のどちらの認証完了処理もNextPathForを使い、遷移先を揃える。
package profilegate

import "github.com/hitoshi/thefn/internal/model"

// 遷移先のパス。
const (
	LoginPath         = "/login"
	ProfileCreatePath = "/profile/create"
	DashboardPath     = "/dashboard"
)

// NextPathFor はセッションのユーザーに対する遷移先を返す。
// userがnilならログイン、表示名が未登録ならプロフィール作成、それ以外はダッシュボード。
func NextPathFor(user *model.SessionUser) string {
	switch {
	case user == nil:
		return LoginPath
	case !user.HasProfile():
		return ProfileCreatePath
	default:
		return DashboardPath
	}
}
